package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/internal/store/memory"
	"github.com/screenlogapp/screenlog/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAppender struct {
	entries []model.ActivityEntry
	err     error
}

func (r *recordingAppender) Append(_ context.Context, entry model.ActivityEntry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

type failingStore struct {
	store.Store
}

func (failingStore) Set(context.Context, string, any) error {
	return errors.New("write failed")
}

var (
	alice     = model.Principal{ID: "u1", DisplayName: "Alice"}
	inception = model.MediaRef{MediaType: model.MediaTypeMovie, MediaID: "27205", Title: "Inception"}
)

func newController() (*Controller, *memory.Store, *recordingAppender) {
	st := memory.New()
	rec := &recordingAppender{}
	return New(st, rec, zap.NewNop()), st, rec
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func TestSetStatusRejectsInvalidRating(t *testing.T) {
	ctx := context.Background()
	c, st, rec := newController()

	for _, r := range []int{0, 6, -1} {
		err := c.SetStatus(ctx, alice, inception, StatusUpdate{Rating: intPtr(r)})
		assert.ErrorIs(t, err, ErrInvalidRating)
	}

	// Rejected before any store call.
	_, err := st.Get(ctx, "users/u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, rec.entries)
}

func TestSetStatusRejectsRatingOnExplicitlyUnwatched(t *testing.T) {
	c, _, _ := newController()
	err := c.SetStatus(context.Background(), alice, inception, StatusUpdate{
		Watched: boolPtr(false),
		Rating:  intPtr(4),
	})
	assert.ErrorIs(t, err, ErrRatingRequiresWatched)
}

func TestSetStatusUnwatchClearsRating(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newController()

	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{
		Watched: boolPtr(true),
		Rating:  intPtr(5),
	}))
	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{
		Watched: boolPtr(false),
	}))

	entry, err := c.GetStatus(ctx, "u1", inception.MediaType, inception.MediaID)
	require.NoError(t, err)
	assert.False(t, entry.Watched)
	assert.Nil(t, entry.Rating)
}

func TestSetStatusEmitsWatchedActivity(t *testing.T) {
	ctx := context.Background()
	c, _, rec := newController()

	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{Watched: boolPtr(true)}))

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.Equal(t, model.ActivityTypeWatched, entry.Type)
	assert.Equal(t, "u1", entry.OwnerID)
	assert.Equal(t, inception.Key(), entry.Media.Key())
	assert.False(t, entry.Timestamp.IsZero())
}

func TestSetStatusRatingImpliesWatchedEmitsRated(t *testing.T) {
	ctx := context.Background()
	c, _, rec := newController()

	// Rating an unwatched item flips it to watched, but the activity
	// reports the rating, not the implied watch.
	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{Rating: intPtr(4)}))

	entry, err := c.GetStatus(ctx, "u1", inception.MediaType, inception.MediaID)
	require.NoError(t, err)
	assert.True(t, entry.Watched)
	require.NotNil(t, entry.Rating)
	assert.Equal(t, 4, *entry.Rating)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, model.ActivityTypeRated, rec.entries[0].Type)
	require.NotNil(t, rec.entries[0].Rating)
	assert.Equal(t, 4, *rec.entries[0].Rating)
}

func TestSetStatusAtMostOneActivityPerCall(t *testing.T) {
	ctx := context.Background()
	c, _, rec := newController()

	// Watched, rated and watchlisted in one update: the explicit
	// watched flip wins.
	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{
		Watched:     boolPtr(true),
		Rating:      intPtr(5),
		InWatchlist: boolPtr(true),
	}))

	require.Len(t, rec.entries, 1)
	assert.Equal(t, model.ActivityTypeWatched, rec.entries[0].Type)
}

func TestSetStatusNoActivityWithoutQualifyingTransition(t *testing.T) {
	ctx := context.Background()
	c, _, rec := newController()

	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{Favorited: boolPtr(true)}))
	assert.Empty(t, rec.entries)

	// Re-asserting an already-watched state is not a transition.
	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{Watched: boolPtr(true)}))
	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{Watched: boolPtr(true)}))
	assert.Len(t, rec.entries, 1)
}

func TestSetStatusAppendFailureKeepsStatus(t *testing.T) {
	ctx := context.Background()
	c, _, rec := newController()
	rec.err = errors.New("log unavailable")

	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{Watched: boolPtr(true)}))

	entry, err := c.GetStatus(ctx, "u1", inception.MediaType, inception.MediaID)
	require.NoError(t, err)
	assert.True(t, entry.Watched)
}

func TestSetStatusWriteFailureIsNoOp(t *testing.T) {
	ctx := context.Background()
	rec := &recordingAppender{}
	c := New(failingStore{memory.New()}, rec, zap.NewNop())

	err := c.SetStatus(ctx, alice, inception, StatusUpdate{Watched: boolPtr(true)})
	require.Error(t, err)
	assert.Empty(t, rec.entries)
}

func TestGetStatusUnknownKeyIsZero(t *testing.T) {
	c, _, _ := newController()
	entry, err := c.GetStatus(context.Background(), "u1", model.MediaTypeMovie, "999")
	require.NoError(t, err)
	assert.Equal(t, model.MediaStatusEntry{}, entry)
}

func TestListByFlag(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newController()

	other := model.MediaRef{MediaType: model.MediaTypeSeries, MediaID: "1399", Title: "Game of Thrones"}
	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{Favorited: boolPtr(true)}))
	require.NoError(t, c.SetStatus(ctx, alice, other, StatusUpdate{InWatchlist: boolPtr(true)}))

	favs, err := c.ListByFlag(ctx, "u1", FlagFavorited)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, inception.Key(), favs[0].Key())

	watchlist, err := c.ListByFlag(ctx, "u1", FlagInWatchlist)
	require.NoError(t, err)
	require.Len(t, watchlist, 1)
	assert.Equal(t, other.Key(), watchlist[0].Key())
}

func TestStatsCountsWatchedOnly(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newController()

	movie := model.MediaRef{MediaType: model.MediaTypeMovie, MediaID: "1", RuntimeMinutes: 120}
	series := model.MediaRef{MediaType: model.MediaTypeSeries, MediaID: "2", RuntimeMinutes: 45}
	unwatched := model.MediaRef{MediaType: model.MediaTypeMovie, MediaID: "3", RuntimeMinutes: 90}

	require.NoError(t, c.SetStatus(ctx, alice, movie, StatusUpdate{Watched: boolPtr(true)}))
	require.NoError(t, c.SetStatus(ctx, alice, series, StatusUpdate{Watched: boolPtr(true)}))
	require.NoError(t, c.SetStatus(ctx, alice, unwatched, StatusUpdate{InWatchlist: boolPtr(true)}))

	stats, err := c.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.UserStats{MoviesWatched: 1, SeriesWatched: 1, TotalMinutes: 165}, stats)
}

func TestSubscribeStatesDeliversFullMap(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newController()

	var last map[string]model.MediaStatusEntry
	sub := c.SubscribeStates("u1", func(states map[string]model.MediaStatusEntry) {
		last = states
	})
	defer sub.Unsubscribe()
	assert.Empty(t, last)

	require.NoError(t, c.SetStatus(ctx, alice, inception, StatusUpdate{Watched: boolPtr(true)}))
	require.Len(t, last, 1)
	assert.True(t, last[inception.Key()].Watched)
}
