// Package lists manages user-defined named collections of media
// references.
package lists

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/pkg/model"
)

var (
	ErrEmptyName = errors.New("list name must not be empty")
	ErrNotFound  = errors.New("list not found")
)

type Controller struct {
	store store.Store
	now   func() time.Time
}

// New creates a custom list controller.
func New(st store.Store) *Controller {
	return &Controller{store: st, now: time.Now}
}

// Create makes a new empty list and returns its id. An empty name is
// rejected before any store call.
func (c *Controller) Create(ctx context.Context, who model.Principal, name, description string, isPublic bool) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyName
	}
	list := model.CustomList{
		OwnerID:     who.ID,
		Name:        name,
		Description: description,
		IsPublic:    isPublic,
		Items:       []model.MediaRef{},
		CreatedAt:   c.now().UTC(),
	}
	id, err := c.store.Add(ctx, c.collection(who.ID), list)
	if err != nil {
		return "", fmt.Errorf("create list: %w", err)
	}
	return id, nil
}

// AddItem appends a media reference unless an item with the same key is
// already present. It reports whether the item was added.
func (c *Controller) AddItem(ctx context.Context, who model.Principal, listID string, ref model.MediaRef) (bool, error) {
	list, path, err := c.load(ctx, who.ID, listID)
	if err != nil {
		return false, err
	}
	if list.Contains(ref) {
		return false, nil
	}
	list.Items = append(list.Items, ref)
	list.ID = ""
	if err := c.store.Set(ctx, path, list); err != nil {
		return false, fmt.Errorf("add list item: %w", err)
	}
	return true, nil
}

// RemoveItem removes the stored snapshot matching the reference's key,
// regardless of whether its other fields have diverged from the catalog.
func (c *Controller) RemoveItem(ctx context.Context, who model.Principal, listID string, ref model.MediaRef) error {
	list, path, err := c.load(ctx, who.ID, listID)
	if err != nil {
		return err
	}
	items := list.Items[:0]
	for _, it := range list.Items {
		if it.Key() != ref.Key() {
			items = append(items, it)
		}
	}
	list.Items = items
	list.ID = ""
	if err := c.store.Set(ctx, path, list); err != nil {
		return fmt.Errorf("remove list item: %w", err)
	}
	return nil
}

// Get returns a list by owner and id, or nil when it does not exist.
func (c *Controller) Get(ctx context.Context, ownerID, listID string) (*model.CustomList, error) {
	list, _, err := c.load(ctx, ownerID, listID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &list, nil
}

// ListFor returns a user's lists, newest first.
func (c *Controller) ListFor(ctx context.Context, ownerID string) ([]model.CustomList, error) {
	docs, err := c.store.Query(ctx, c.collection(ownerID),
		store.OrderBy("createdAt", true))
	if err != nil {
		return nil, fmt.Errorf("fetch lists: %w", err)
	}
	out := make([]model.CustomList, 0, len(docs))
	for _, d := range docs {
		var list model.CustomList
		if err := d.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode list %s: %w", d.ID, err)
		}
		list.ID = d.ID
		out = append(out, list)
	}
	return out, nil
}

// Delete removes one of the owner's lists. Sibling lists are untouched.
func (c *Controller) Delete(ctx context.Context, who model.Principal, listID string) error {
	if err := c.store.Delete(ctx, store.Join(c.collection(who.ID), listID)); err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return nil
}

func (c *Controller) collection(ownerID string) string {
	return store.Join("users", ownerID, "customLists")
}

func (c *Controller) load(ctx context.Context, ownerID, listID string) (model.CustomList, string, error) {
	path := store.Join(c.collection(ownerID), listID)
	doc, err := c.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.CustomList{}, "", ErrNotFound
		}
		return model.CustomList{}, "", fmt.Errorf("load list: %w", err)
	}
	var list model.CustomList
	if err := doc.Decode(&list); err != nil {
		return model.CustomList{}, "", fmt.Errorf("decode list %s: %w", listID, err)
	}
	list.ID = doc.ID
	return list, path, nil
}
