// Package social owns the directed follow/follower edges and their
// derived counts.
package social

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/pkg/model"
	"go.uber.org/zap"
)

var ErrSelfFollow = errors.New("cannot follow yourself")

type notifier interface {
	Notify(ctx context.Context, from model.Principal, recipientID string, typ model.NotificationType, message, link string) error
}

type Controller struct {
	store         store.Store
	notifications notifier
	logger        *zap.Logger
	now           func() time.Time
}

// New creates a social graph controller.
func New(st store.Store, notifications notifier, logger *zap.Logger) *Controller {
	return &Controller{store: st, notifications: notifications, logger: logger, now: time.Now}
}

// Follow writes both directional edges in one atomic batch, so the graph
// can never be observed one-sided, then fans out a single new_follower
// notification to the target. Following yourself is rejected.
func (c *Controller) Follow(ctx context.Context, who model.Principal, targetID string) error {
	if targetID == who.ID {
		return ErrSelfFollow
	}
	edge := model.FollowEdge{CreatedAt: c.now().UTC()}
	err := c.store.Batch().
		Set(store.Join("users", who.ID, "following", targetID), edge).
		Set(store.Join("users", targetID, "followers", who.ID), edge).
		Commit(ctx)
	if err != nil {
		return fmt.Errorf("write follow edges: %w", err)
	}
	msg := fmt.Sprintf("%s started following you!", who.DisplayName)
	if err := c.notifications.Notify(ctx, who, targetID, model.NotificationTypeNewFollower, msg, "/profile/"+who.ID); err != nil {
		// Best effort: the follow itself stands.
		c.logger.Error("failed to notify new follower",
			zap.String("targetId", targetID), zap.Error(err))
	}
	return nil
}

// Unfollow removes both directional edges atomically. No notification is
// generated.
func (c *Controller) Unfollow(ctx context.Context, who model.Principal, targetID string) error {
	if targetID == who.ID {
		return ErrSelfFollow
	}
	err := c.store.Batch().
		Delete(store.Join("users", who.ID, "following", targetID)).
		Delete(store.Join("users", targetID, "followers", who.ID)).
		Commit(ctx)
	if err != nil {
		return fmt.Errorf("remove follow edges: %w", err)
	}
	return nil
}

// IsFollowing reports whether userID follows targetID.
func (c *Controller) IsFollowing(ctx context.Context, userID, targetID string) (bool, error) {
	_, err := c.store.Get(ctx, store.Join("users", userID, "following", targetID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load follow edge: %w", err)
	}
	return true, nil
}

// ListFollowing resolves the users userID follows to profile snapshots.
// Edges whose target profile no longer resolves are silently dropped.
func (c *Controller) ListFollowing(ctx context.Context, userID string) ([]model.Principal, error) {
	return c.resolveEdges(ctx, store.Join("users", userID, "following"))
}

// ListFollowers resolves the users following userID to profile snapshots.
func (c *Controller) ListFollowers(ctx context.Context, userID string) ([]model.Principal, error) {
	return c.resolveEdges(ctx, store.Join("users", userID, "followers"))
}

// Counts returns the user's following and follower edge counts.
func (c *Controller) Counts(ctx context.Context, userID string) (following, followers int, err error) {
	fdocs, err := c.store.Query(ctx, store.Join("users", userID, "following"))
	if err != nil {
		return 0, 0, fmt.Errorf("count following: %w", err)
	}
	rdocs, err := c.store.Query(ctx, store.Join("users", userID, "followers"))
	if err != nil {
		return 0, 0, fmt.Errorf("count followers: %w", err)
	}
	return len(fdocs), len(rdocs), nil
}

// SubscribeCounts delivers the user's follow counts on every edge change
// on either side.
func (c *Controller) SubscribeCounts(userID string, fn func(following, followers int)) store.Subscription {
	var mu sync.Mutex
	var following, followers int
	fsub := c.store.SubscribeQuery(store.Join("users", userID, "following"), func(docs []store.Document) {
		mu.Lock()
		following = len(docs)
		f, r := following, followers
		mu.Unlock()
		fn(f, r)
	})
	rsub := c.store.SubscribeQuery(store.Join("users", userID, "followers"), func(docs []store.Document) {
		mu.Lock()
		followers = len(docs)
		f, r := following, followers
		mu.Unlock()
		fn(f, r)
	})
	return &pairSubscription{a: fsub, b: rsub}
}

type pairSubscription struct {
	a, b store.Subscription
	once sync.Once
}

func (p *pairSubscription) Unsubscribe() {
	p.once.Do(func() {
		p.a.Unsubscribe()
		p.b.Unsubscribe()
	})
}

func (c *Controller) resolveEdges(ctx context.Context, collection string) ([]model.Principal, error) {
	docs, err := c.store.Query(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	out := make([]model.Principal, 0, len(docs))
	for _, d := range docs {
		userDoc, err := c.store.Get(ctx, store.Join("users", d.ID))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolve profile %s: %w", d.ID, err)
		}
		var u model.UserDoc
		if err := userDoc.Decode(&u); err != nil || u.Profile == nil {
			continue
		}
		p := *u.Profile
		p.ID = d.ID
		out = append(out, p)
	}
	return out, nil
}
