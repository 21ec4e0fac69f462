// Package profile reads and edits user profile snapshots.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/pkg/model"
)

var ErrEmptyDisplayName = errors.New("display name must not be empty")

type Controller struct {
	store store.Store
	now   func() time.Time
}

// New creates a profile controller.
func New(st store.Store) *Controller {
	return &Controller{store: st, now: time.Now}
}

// Get returns a user's profile, or nil when the user or profile does not
// exist.
func (c *Controller) Get(ctx context.Context, userID string) (*model.Principal, error) {
	doc, err := c.store.Get(ctx, store.Join("users", userID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load user document: %w", err)
	}
	var u model.UserDoc
	if err := doc.Decode(&u); err != nil {
		return nil, fmt.Errorf("decode user document: %w", err)
	}
	if u.Profile == nil {
		return nil, nil
	}
	p := *u.Profile
	p.ID = userID
	return &p, nil
}

// Update writes the acting user's profile, preserving the rest of the
// user document and the original creation time.
func (c *Controller) Update(ctx context.Context, who model.Principal, displayName, bio string) error {
	if strings.TrimSpace(displayName) == "" {
		return ErrEmptyDisplayName
	}
	path := store.Join("users", who.ID)
	var doc model.UserDoc
	if stored, err := c.store.Get(ctx, path); err == nil {
		if err := stored.Decode(&doc); err != nil {
			return fmt.Errorf("decode user document: %w", err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load user document: %w", err)
	}
	doc.Profile = &model.Principal{
		DisplayName: displayName,
		PhotoRef:    who.PhotoRef,
		Bio:         bio,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = c.now().UTC()
	}
	if err := c.store.Set(ctx, path, doc); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	return nil
}

// All returns every user with a profile, for user discovery. Documents
// without a profile are skipped.
func (c *Controller) All(ctx context.Context) ([]model.Principal, error) {
	docs, err := c.store.Query(ctx, "users")
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	out := make([]model.Principal, 0, len(docs))
	for _, d := range docs {
		var u model.UserDoc
		if err := d.Decode(&u); err != nil || u.Profile == nil {
			continue
		}
		p := *u.Profile
		p.ID = d.ID
		out = append(out, p)
	}
	return out, nil
}
