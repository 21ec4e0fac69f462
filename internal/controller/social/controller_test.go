package social

import (
	"context"
	"errors"
	"testing"

	"github.com/screenlogapp/screenlog/internal/controller/notification"
	"github.com/screenlogapp/screenlog/internal/store/memory"
	"github.com/screenlogapp/screenlog/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

var actor = model.Principal{ID: "u1", DisplayName: "Alice"}

func newController() (*Controller, *memory.Store, *notification.Controller) {
	st := memory.New()
	notifications := notification.New(st, tally.NoopScope)
	return New(st, notifications, zap.NewNop()), st, notifications
}

func setProfile(t *testing.T, st *memory.Store, id, name string) {
	t.Helper()
	require.NoError(t, st.Set(context.Background(), "users/"+id, model.UserDoc{
		Profile: &model.Principal{DisplayName: name},
	}))
}

func TestFollowWritesBothEdges(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newController()

	require.NoError(t, c.Follow(ctx, actor, "u2"))

	following, err := c.IsFollowing(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.True(t, following)

	// The reverse edge exists on the target's side.
	_, followers, err := c.Counts(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, followers)
}

func TestFollowNotifiesTargetOnce(t *testing.T) {
	ctx := context.Background()
	c, _, notifications := newController()

	require.NoError(t, c.Follow(ctx, actor, "u2"))

	recent, err := notifications.Recent(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, model.NotificationTypeNewFollower, recent[0].Type)
	assert.Equal(t, "u1", recent[0].SenderID)
	assert.Equal(t, "Alice started following you!", recent[0].Message)
	assert.Equal(t, "/profile/u1", recent[0].Link)
	assert.False(t, recent[0].Read)
}

func TestFollowSelfRejected(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newController()

	assert.ErrorIs(t, c.Follow(ctx, actor, "u1"), ErrSelfFollow)
	assert.ErrorIs(t, c.Unfollow(ctx, actor, "u1"), ErrSelfFollow)

	following, _, err := c.Counts(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, following)
}

func TestUnfollowRemovesBothEdgesSilently(t *testing.T) {
	ctx := context.Background()
	c, _, notifications := newController()

	require.NoError(t, c.Follow(ctx, actor, "u2"))
	require.NoError(t, c.Unfollow(ctx, actor, "u2"))

	following, err := c.IsFollowing(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.False(t, following)

	_, followers, err := c.Counts(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, followers)

	// Only the follow notification exists; unfollow adds none.
	recent, err := notifications.Recent(ctx, "u2", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, model.Principal, string, model.NotificationType, string, string) error {
	return errors.New("fan-out failed")
}

func TestFollowSurvivesNotifyFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	c := New(st, failingNotifier{}, zap.NewNop())

	require.NoError(t, c.Follow(ctx, actor, "u2"))

	following, err := c.IsFollowing(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.True(t, following)
}

func TestListFollowingDropsUnresolvedProfiles(t *testing.T) {
	ctx := context.Background()
	c, st, _ := newController()
	setProfile(t, st, "u2", "Bob")
	// u3 has no user document at all.

	require.NoError(t, c.Follow(ctx, actor, "u2"))
	require.NoError(t, c.Follow(ctx, actor, "u3"))

	following, err := c.ListFollowing(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "u2", following[0].ID)
	assert.Equal(t, "Bob", following[0].DisplayName)
}

func TestListFollowers(t *testing.T) {
	ctx := context.Background()
	c, st, _ := newController()
	setProfile(t, st, "u1", "Alice")
	bob := model.Principal{ID: "u2", DisplayName: "Bob"}

	require.NoError(t, c.Follow(ctx, actor, "u3"))
	require.NoError(t, c.Follow(ctx, bob, "u3"))

	followers, err := c.ListFollowers(ctx, "u3")
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.Equal(t, "u1", followers[0].ID)
}

func TestSubscribeCountsTracksBothSides(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newController()

	var following, followers int
	sub := c.SubscribeCounts("u1", func(f, r int) {
		following, followers = f, r
	})
	defer sub.Unsubscribe()

	require.NoError(t, c.Follow(ctx, actor, "u2"))
	assert.Equal(t, 1, following)

	bob := model.Principal{ID: "u2", DisplayName: "Bob"}
	require.NoError(t, c.Follow(ctx, bob, "u1"))
	assert.Equal(t, 1, following)
	assert.Equal(t, 1, followers)

	require.NoError(t, c.Unfollow(ctx, actor, "u2"))
	assert.Zero(t, following)
	assert.Equal(t, 1, followers)
}
