package activity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/screenlogapp/screenlog/internal/store/memory"
	"github.com/screenlogapp/screenlog/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
)

func newController() *Controller {
	c := New(memory.New(), tally.NoopScope)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	c.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return c
}

func entry(ownerID, mediaID string) model.ActivityEntry {
	return model.ActivityEntry{
		OwnerID: ownerID,
		Type:    model.ActivityTypeWatched,
		Media:   model.MediaRef{MediaType: model.MediaTypeMovie, MediaID: mediaID},
	}
}

func TestAppendAssignsTimestamp(t *testing.T) {
	ctx := context.Background()
	c := newController()

	require.NoError(t, c.Append(ctx, entry("u1", "1")))

	entries, err := c.ForUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Timestamp.IsZero())
	assert.NotEmpty(t, entries[0].ID)
}

func TestFeedForFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	c := newController()

	require.NoError(t, c.Append(ctx, entry("u1", "1")))
	require.NoError(t, c.Append(ctx, entry("u2", "2")))
	require.NoError(t, c.Append(ctx, entry("u3", "3")))
	require.NoError(t, c.Append(ctx, entry("u1", "4")))

	feed, err := c.FeedFor(ctx, []string{"u1", "u3"}, 10)
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, "4", feed[0].Media.MediaID)
	assert.Equal(t, "3", feed[1].Media.MediaID)
	assert.Equal(t, "1", feed[2].Media.MediaID)
}

func TestFeedForEmptyFollowSet(t *testing.T) {
	c := newController()
	feed, err := c.FeedFor(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Nil(t, feed)
}

func TestFeedForHonorsLimit(t *testing.T) {
	ctx := context.Background()
	c := newController()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Append(ctx, entry("u1", fmt.Sprint(i))))
	}

	feed, err := c.FeedFor(ctx, []string{"u1"}, 2)
	require.NoError(t, err)
	assert.Len(t, feed, 2)
}

// The feed only looks at the most recent window of all activity, so a
// followed user's entry can fall out when busier strangers push it past
// the window.
func TestFeedWindowCanStarveQuietUsers(t *testing.T) {
	ctx := context.Background()
	c := newController()

	require.NoError(t, c.Append(ctx, entry("u1", "old")))
	for i := 0; i < feedWindow; i++ {
		require.NoError(t, c.Append(ctx, entry("u9", fmt.Sprint(i))))
	}

	feed, err := c.FeedFor(ctx, []string{"u1"}, 10)
	require.NoError(t, err)
	assert.Empty(t, feed)
}

func TestForUserScopesToOwner(t *testing.T) {
	ctx := context.Background()
	c := newController()

	require.NoError(t, c.Append(ctx, entry("u1", "1")))
	require.NoError(t, c.Append(ctx, entry("u2", "2")))
	require.NoError(t, c.Append(ctx, entry("u1", "3")))

	entries, err := c.ForUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "3", entries[0].Media.MediaID)
	assert.Equal(t, "1", entries[1].Media.MediaID)
}
