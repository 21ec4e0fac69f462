package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(id string, payload string) Document {
	return Document{ID: id, Path: "items/" + id, Data: json.RawMessage(payload)}
}

func TestQueryMatches(t *testing.T) {
	q := BuildQuery(Where("recipientId", "u1"), Where("read", false))
	assert.True(t, q.Matches(json.RawMessage(`{"recipientId":"u1","read":false}`)))
	assert.False(t, q.Matches(json.RawMessage(`{"recipientId":"u2","read":false}`)))
	assert.False(t, q.Matches(json.RawMessage(`{"recipientId":"u1","read":true}`)))
	assert.False(t, q.Matches(json.RawMessage(`{"read":false}`)))
}

func TestQueryApplyOrderAndLimit(t *testing.T) {
	docs := []Document{
		doc("a", `{"createdAt":"2024-01-01T10:00:00Z","n":1}`),
		doc("b", `{"createdAt":"2024-01-03T10:00:00Z","n":2}`),
		doc("c", `{"createdAt":"2024-01-02T10:00:00Z","n":3}`),
	}

	out := BuildQuery(OrderBy("createdAt", true), Limit(2)).Apply(docs)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "c", out[1].ID)

	out = BuildQuery(OrderBy("createdAt", false)).Apply(docs)
	require.Len(t, out, 3)
	assert.Equal(t, []string{out[0].ID, out[1].ID, out[2].ID}, []string{"a", "c", "b"})
}

// Timestamps with fractional seconds must order as instants: the plain
// string comparison would put "10:00:00.25Z" before "10:00:00Z".
func TestQueryApplyTimestampPrecision(t *testing.T) {
	docs := []Document{
		doc("frac", `{"createdAt":"2024-01-01T10:00:00.25Z"}`),
		doc("whole", `{"createdAt":"2024-01-01T10:00:00Z"}`),
	}
	out := BuildQuery(OrderBy("createdAt", true)).Apply(docs)
	require.Len(t, out, 2)
	assert.Equal(t, "frac", out[0].ID)
}

func TestQueryApplyFiltersBeforeLimit(t *testing.T) {
	docs := []Document{
		doc("a", `{"ownerId":"u1","createdAt":"2024-01-01T10:00:00Z"}`),
		doc("b", `{"ownerId":"u2","createdAt":"2024-01-02T10:00:00Z"}`),
		doc("c", `{"ownerId":"u1","createdAt":"2024-01-03T10:00:00Z"}`),
	}
	out := BuildQuery(Where("ownerId", "u1"), OrderBy("createdAt", true), Limit(1)).Apply(docs)
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].ID)
}

func TestPathHelpers(t *testing.T) {
	path := Join("users", "u1", "following", "u2")
	assert.Equal(t, "users/u1/following/u2", path)
	assert.Equal(t, "users/u1/following", Collection(path))
	assert.Equal(t, "u2", DocID(path))
}
