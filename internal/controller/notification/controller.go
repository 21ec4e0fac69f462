// Package notification creates and tracks the read/unread notices that
// other components fan out to recipients.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/pkg/model"
	"github.com/uber-go/tally/v4"
)

var ErrNotFound = errors.New("notification not found")

type Controller struct {
	store store.Store
	scope tally.Scope
	now   func() time.Time
}

// New creates a notification controller.
func New(st store.Store, scope tally.Scope) *Controller {
	return &Controller{store: st, scope: scope, now: time.Now}
}

// Notify creates one unread notification for the recipient, attributed to
// the acting principal.
func (c *Controller) Notify(ctx context.Context, from model.Principal, recipientID string, typ model.NotificationType, message, link string) error {
	n := model.Notification{
		RecipientID:    recipientID,
		SenderID:       from.ID,
		SenderName:     from.DisplayName,
		SenderPhotoRef: from.PhotoRef,
		Type:           typ,
		Message:        message,
		Link:           link,
		Read:           false,
		CreatedAt:      c.now().UTC(),
	}
	if _, err := c.store.Add(ctx, "notifications", n); err != nil {
		c.scope.Counter("notification_failures").Inc(1)
		return fmt.Errorf("create notification: %w", err)
	}
	c.scope.Counter("notifications_created").Inc(1)
	return nil
}

// MarkRead marks one notification as read. Marking an already-read
// notification is a silent no-op.
func (c *Controller) MarkRead(ctx context.Context, notificationID string) error {
	path := store.Join("notifications", notificationID)
	doc, err := c.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load notification: %w", err)
	}
	var n model.Notification
	if err := doc.Decode(&n); err != nil {
		return fmt.Errorf("decode notification %s: %w", notificationID, err)
	}
	if n.Read {
		return nil
	}
	n.Read = true
	n.ID = ""
	if err := c.store.Set(ctx, path, n); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkAllRead marks the recipient's current unread set in one atomic
// batch. Notifications created while the batch runs are not covered.
func (c *Controller) MarkAllRead(ctx context.Context, recipientID string) error {
	docs, err := c.store.Query(ctx, "notifications",
		store.Where("recipientId", recipientID),
		store.Where("read", false))
	if err != nil {
		return fmt.Errorf("load unread notifications: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}
	batch := c.store.Batch()
	for _, d := range docs {
		var n model.Notification
		if err := d.Decode(&n); err != nil {
			return fmt.Errorf("decode notification %s: %w", d.ID, err)
		}
		n.Read = true
		n.ID = ""
		batch.Set(d.Path, n)
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

// Recent returns the recipient's latest notifications, newest first.
func (c *Controller) Recent(ctx context.Context, recipientID string, n int) ([]model.Notification, error) {
	docs, err := c.store.Query(ctx, "notifications",
		store.Where("recipientId", recipientID),
		store.OrderBy("createdAt", true), store.Limit(n))
	if err != nil {
		return nil, fmt.Errorf("fetch notifications: %w", err)
	}
	out := make([]model.Notification, 0, len(docs))
	for _, d := range docs {
		var notif model.Notification
		if err := d.Decode(&notif); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", d.ID, err)
		}
		notif.ID = d.ID
		out = append(out, notif)
	}
	return out, nil
}

// UnreadCount returns the number of unread notifications for a recipient.
func (c *Controller) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	docs, err := c.store.Query(ctx, "notifications",
		store.Where("recipientId", recipientID),
		store.Where("read", false))
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return len(docs), nil
}

// SubscribeUnread delivers the unread count and the most recent n
// notifications on every change to the recipient's notifications.
func (c *Controller) SubscribeUnread(recipientID string, n int, fn func(unread int, recent []model.Notification)) store.Subscription {
	return c.store.SubscribeQuery("notifications", func(docs []store.Document) {
		unread := 0
		recent := make([]model.Notification, 0, len(docs))
		for _, d := range docs {
			var notif model.Notification
			if err := d.Decode(&notif); err != nil {
				continue
			}
			notif.ID = d.ID
			if !notif.Read {
				unread++
			}
			if len(recent) < n {
				recent = append(recent, notif)
			}
		}
		fn(unread, recent)
	}, store.Where("recipientId", recipientID), store.OrderBy("createdAt", true))
}
