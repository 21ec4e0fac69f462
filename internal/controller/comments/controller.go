// Package comments manages user comments and reviews attached to media
// items, and fans out comment notifications to earlier participants.
package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/pkg/model"
	"go.uber.org/zap"
)

var (
	ErrEmptyText = errors.New("text must not be empty")
	ErrNotFound  = errors.New("not found")
	ErrNotAuthor = errors.New("only the author can modify this")
)

type notifier interface {
	Notify(ctx context.Context, from model.Principal, recipientID string, typ model.NotificationType, message, link string) error
}

type Controller struct {
	store         store.Store
	notifications notifier
	logger        *zap.Logger
	now           func() time.Time
}

// New creates a comments and reviews controller.
func New(st store.Store, notifications notifier, logger *zap.Logger) *Controller {
	return &Controller{store: st, notifications: notifications, logger: logger, now: time.Now}
}

// AddComment appends a comment to a media item and notifies earlier
// distinct commenters, excluding the author. Fan-out is best effort.
func (c *Controller) AddComment(ctx context.Context, who model.Principal, ref model.MediaRef, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	collection := commentCollection(ref.MediaType, ref.MediaID)
	prior, err := c.store.Query(ctx, collection)
	if err != nil {
		return fmt.Errorf("load prior comments: %w", err)
	}
	ts := c.now().UTC()
	comment := model.Comment{
		UserID:       who.ID,
		UserName:     who.DisplayName,
		UserPhotoRef: who.PhotoRef,
		Text:         text,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if _, err := c.store.Add(ctx, collection, comment); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}

	notified := map[string]bool{who.ID: true}
	for _, d := range prior {
		var prev model.Comment
		if err := d.Decode(&prev); err != nil || notified[prev.UserID] {
			continue
		}
		notified[prev.UserID] = true
		msg := fmt.Sprintf("%s commented on %s", who.DisplayName, ref.Title)
		link := fmt.Sprintf("/detail/%s/%s", ref.MediaType, ref.MediaID)
		if err := c.notifications.Notify(ctx, who, prev.UserID, model.NotificationTypeNewComment, msg, link); err != nil {
			c.logger.Error("failed to notify commenter",
				zap.String("recipientId", prev.UserID), zap.Error(err))
		}
	}
	return nil
}

// ListComments returns a media item's comments, oldest first.
func (c *Controller) ListComments(ctx context.Context, mediaType model.MediaType, mediaID string) ([]model.Comment, error) {
	docs, err := c.store.Query(ctx, commentCollection(mediaType, mediaID),
		store.OrderBy("createdAt", false))
	if err != nil {
		return nil, fmt.Errorf("fetch comments: %w", err)
	}
	out := make([]model.Comment, 0, len(docs))
	for _, d := range docs {
		var cm model.Comment
		if err := d.Decode(&cm); err != nil {
			return nil, fmt.Errorf("decode comment %s: %w", d.ID, err)
		}
		cm.ID = d.ID
		out = append(out, cm)
	}
	return out, nil
}

// UpdateComment replaces a comment's text. Only the author may edit.
func (c *Controller) UpdateComment(ctx context.Context, who model.Principal, ref model.MediaRef, commentID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	path := store.Join(commentCollection(ref.MediaType, ref.MediaID), commentID)
	doc, err := c.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load comment: %w", err)
	}
	var cm model.Comment
	if err := doc.Decode(&cm); err != nil {
		return fmt.Errorf("decode comment %s: %w", commentID, err)
	}
	if cm.UserID != who.ID {
		return ErrNotAuthor
	}
	cm.Text = text
	cm.UpdatedAt = c.now().UTC()
	cm.ID = ""
	if err := c.store.Set(ctx, path, cm); err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

// DeleteComment removes a comment. Only the author may delete.
func (c *Controller) DeleteComment(ctx context.Context, who model.Principal, ref model.MediaRef, commentID string) error {
	path := store.Join(commentCollection(ref.MediaType, ref.MediaID), commentID)
	doc, err := c.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load comment: %w", err)
	}
	var cm model.Comment
	if err := doc.Decode(&cm); err != nil {
		return fmt.Errorf("decode comment %s: %w", commentID, err)
	}
	if cm.UserID != who.ID {
		return ErrNotAuthor
	}
	if err := c.store.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// AddReview appends a review to a media item.
func (c *Controller) AddReview(ctx context.Context, who model.Principal, ref model.MediaRef, text string, rating *int) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	ts := c.now().UTC()
	review := model.Review{
		UserID:       who.ID,
		UserName:     who.DisplayName,
		UserPhotoRef: who.PhotoRef,
		Text:         text,
		Rating:       rating,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if _, err := c.store.Add(ctx, reviewCollection(ref.MediaType, ref.MediaID), review); err != nil {
		return fmt.Errorf("add review: %w", err)
	}
	return nil
}

// ListReviews returns a media item's reviews, newest first.
func (c *Controller) ListReviews(ctx context.Context, mediaType model.MediaType, mediaID string) ([]model.Review, error) {
	docs, err := c.store.Query(ctx, reviewCollection(mediaType, mediaID),
		store.OrderBy("createdAt", true))
	if err != nil {
		return nil, fmt.Errorf("fetch reviews: %w", err)
	}
	out := make([]model.Review, 0, len(docs))
	for _, d := range docs {
		var rv model.Review
		if err := d.Decode(&rv); err != nil {
			return nil, fmt.Errorf("decode review %s: %w", d.ID, err)
		}
		rv.ID = d.ID
		out = append(out, rv)
	}
	return out, nil
}

// UpdateReview replaces a review's text. Only the author may edit.
func (c *Controller) UpdateReview(ctx context.Context, who model.Principal, ref model.MediaRef, reviewID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	path := store.Join(reviewCollection(ref.MediaType, ref.MediaID), reviewID)
	doc, err := c.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load review: %w", err)
	}
	var rv model.Review
	if err := doc.Decode(&rv); err != nil {
		return fmt.Errorf("decode review %s: %w", reviewID, err)
	}
	if rv.UserID != who.ID {
		return ErrNotAuthor
	}
	rv.Text = text
	rv.UpdatedAt = c.now().UTC()
	rv.ID = ""
	if err := c.store.Set(ctx, path, rv); err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	return nil
}

// DeleteReview removes a review. Only the author may delete.
func (c *Controller) DeleteReview(ctx context.Context, who model.Principal, ref model.MediaRef, reviewID string) error {
	path := store.Join(reviewCollection(ref.MediaType, ref.MediaID), reviewID)
	doc, err := c.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load review: %w", err)
	}
	var rv model.Review
	if err := doc.Decode(&rv); err != nil {
		return fmt.Errorf("decode review %s: %w", reviewID, err)
	}
	if rv.UserID != who.ID {
		return ErrNotAuthor
	}
	if err := c.store.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

func commentCollection(mediaType model.MediaType, mediaID string) string {
	return fmt.Sprintf("media/%s_%s/comments", mediaType, mediaID)
}

func reviewCollection(mediaType model.MediaType, mediaID string) string {
	return fmt.Sprintf("media/%s_%s/reviews", mediaType, mediaID)
}
