// Package activity keeps the append-only record of qualifying ledger
// transitions and derives the following-scoped feed from it.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/pkg/model"
	"github.com/uber-go/tally/v4"
)

// feedWindow bounds how much recent activity the feed fetches before
// filtering by follow set. A user following few active accounts may see a
// sparse feed even though older matching entries exist beyond the window.
const feedWindow = 20

type Controller struct {
	store store.Store
	scope tally.Scope
	now   func() time.Time
}

// New creates an activity log controller.
func New(st store.Store, scope tally.Scope) *Controller {
	return &Controller{store: st, scope: scope, now: time.Now}
}

// Append writes one immutable activity entry. Invoked by the ledger on
// qualifying transitions.
func (c *Controller) Append(ctx context.Context, entry model.ActivityEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.now().UTC()
	}
	entry.ID = ""
	if _, err := c.store.Add(ctx, "activities", entry); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	c.scope.Counter("activities_appended").Inc(1)
	return nil
}

// FeedFor returns the most recent activity of the followed users, newest
// first. It fetches a bounded window of all recent activity and filters
// in process, so the result may be shorter than limit.
func (c *Controller) FeedFor(ctx context.Context, followingIDs []string, limit int) ([]model.ActivityEntry, error) {
	if len(followingIDs) == 0 {
		return nil, nil
	}
	docs, err := c.store.Query(ctx, "activities",
		store.OrderBy("timestamp", true), store.Limit(feedWindow))
	if err != nil {
		return nil, fmt.Errorf("fetch activity window: %w", err)
	}
	following := make(map[string]bool, len(followingIDs))
	for _, id := range followingIDs {
		following[id] = true
	}
	var feed []model.ActivityEntry
	for _, d := range docs {
		var entry model.ActivityEntry
		if err := d.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode activity %s: %w", d.ID, err)
		}
		if !following[entry.OwnerID] {
			continue
		}
		entry.ID = d.ID
		feed = append(feed, entry)
		if limit > 0 && len(feed) == limit {
			break
		}
	}
	return feed, nil
}

// ForUser returns one user's most recent activity, newest first.
func (c *Controller) ForUser(ctx context.Context, userID string, limit int) ([]model.ActivityEntry, error) {
	docs, err := c.store.Query(ctx, "activities",
		store.Where("ownerId", userID),
		store.OrderBy("timestamp", true), store.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch user activity: %w", err)
	}
	entries := make([]model.ActivityEntry, 0, len(docs))
	for _, d := range docs {
		var entry model.ActivityEntry
		if err := d.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode activity %s: %w", d.ID, err)
		}
		entry.ID = d.ID
		entries = append(entries, entry)
	}
	return entries, nil
}
