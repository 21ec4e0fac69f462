package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/screenlogapp/screenlog/internal/controller/recommend"
	"github.com/screenlogapp/screenlog/pkg/model"
	"github.com/screenlogapp/screenlog/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var secret = []byte("test-secret")

type staticCatalog struct {
	candidates []model.RecommendationCandidate
}

func (s staticCatalog) GetRecommendations(context.Context, model.MediaType, string) ([]model.RecommendationCandidate, error) {
	return s.candidates, nil
}

func newServer(t *testing.T) (*httptest.Server, *testutil.Core) {
	t.Helper()
	core := testutil.NewTestCore()
	h := New(
		core.Ledger,
		core.Social,
		core.Notifications,
		core.Activity,
		core.Lists,
		recommend.New(staticCatalog{candidates: []model.RecommendationCandidate{
			{MediaType: model.MediaTypeMovie, MediaID: "550", Title: "Fight Club", PosterRef: "/fc.jpg"},
		}}),
		core.Comments,
		core.Profiles,
		func() []byte { return secret },
		zap.NewNop(),
	)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, core
}

func token(t *testing.T, id, name string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  id,
		"name": name,
	}).SignedString(secret)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, method, url, bearer string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	srv, _ := newServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnauthorizedWithForgedToken(t *testing.T) {
	srv, _ := newServer(t)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).
		SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	resp := do(t, http.MethodGet, srv.URL+"/stats", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusRoundTrip(t *testing.T) {
	srv, _ := newServer(t)
	alice := token(t, "u1", "Alice")

	resp := do(t, http.MethodPost, srv.URL+"/status", alice, map[string]any{
		"media":   map[string]any{"mediaType": "movie", "mediaId": "27205", "title": "Inception"},
		"watched": true,
		"rating":  5,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/status?mediaType=movie&mediaId=27205", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entry model.MediaStatusEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	assert.True(t, entry.Watched)
	require.NotNil(t, entry.Rating)
	assert.Equal(t, 5, *entry.Rating)
}

func TestStatusRejectsInvalidRating(t *testing.T) {
	srv, _ := newServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/status", token(t, "u1", "Alice"), map[string]any{
		"media":  map[string]any{"mediaType": "movie", "mediaId": "1"},
		"rating": 9,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestFollowFeedFlow(t *testing.T) {
	srv, core := newServer(t)
	alice := token(t, "u1", "Alice")
	bob := token(t, "u2", "Bob")
	ctx := context.Background()

	// Bob needs a resolvable profile for the feed's follow lookup.
	require.NoError(t, core.Profiles.Update(ctx, model.Principal{ID: "u2"}, "Bob", ""))

	resp := do(t, http.MethodPost, srv.URL+"/status", bob, map[string]any{
		"media":   map[string]any{"mediaType": "movie", "mediaId": "550", "title": "Fight Club"},
		"watched": true,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/follow", alice, map[string]string{"targetId": "u2"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/feed", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var feed []model.ActivityEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&feed))
	require.Len(t, feed, 1)
	assert.Equal(t, "u2", feed[0].OwnerID)
	assert.Equal(t, model.ActivityTypeWatched, feed[0].Type)

	// Bob got exactly one new-follower notification.
	resp = do(t, http.MethodGet, srv.URL+"/notifications", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var notifications []model.Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&notifications))
	require.Len(t, notifications, 1)
	assert.Equal(t, model.NotificationTypeNewFollower, notifications[0].Type)
}

func TestSelfFollowRejected(t *testing.T) {
	srv, _ := newServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/follow", token(t, "u1", "Alice"),
		map[string]string{"targetId": "u1"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListsFlow(t *testing.T) {
	srv, _ := newServer(t)
	alice := token(t, "u1", "Alice")

	resp := do(t, http.MethodPost, srv.URL+"/lists", alice, map[string]any{
		"name": "Rewatch", "isPublic": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created["id"])

	item := map[string]any{
		"listId": created["id"],
		"media":  map[string]any{"mediaType": "movie", "mediaId": "550", "title": "Fight Club"},
	}
	resp = do(t, http.MethodPost, srv.URL+"/lists/items", alice, item)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var added map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&added))
	assert.True(t, added["added"])

	resp = do(t, http.MethodPost, srv.URL+"/lists/items", alice, item)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&added))
	assert.False(t, added["added"])

	resp = do(t, http.MethodGet, srv.URL+"/lists?listId="+created["id"], alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list model.CustomList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Items, 1)
}

func TestListsUnknownID(t *testing.T) {
	srv, _ := newServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/lists?listId=missing", token(t, "u1", "Alice"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecommendationsExcludeKnownMedia(t *testing.T) {
	srv, _ := newServer(t)
	alice := token(t, "u1", "Alice")

	// Seed with a high rating so the engine has something to expand.
	resp := do(t, http.MethodPost, srv.URL+"/status", alice, map[string]any{
		"media":  map[string]any{"mediaType": "movie", "mediaId": "27205", "title": "Inception"},
		"rating": 5,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/recommendations", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var candidates []model.RecommendationCandidate
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&candidates))
	require.Len(t, candidates, 1)
	assert.Equal(t, "550", candidates[0].MediaID)
}

func TestMarkAllReadEndpoint(t *testing.T) {
	srv, core := newServer(t)
	bob := token(t, "u2", "Bob")

	require.NoError(t, core.Notifications.Notify(context.Background(),
		model.Principal{ID: "u1", DisplayName: "Alice"}, "u2",
		model.NotificationTypeNewFollower, "hi", ""))

	resp := do(t, http.MethodPost, srv.URL+"/notifications/read-all", bob, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	unread, err := core.Notifications.UnreadCount(context.Background(), "u2")
	require.NoError(t, err)
	assert.Zero(t, unread)
}
