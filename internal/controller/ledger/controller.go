// Package ledger owns the per-user map of media to personal status flags
// and rating, and emits activity entries on qualifying transitions.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/pkg/model"
	"go.uber.org/zap"
)

var (
	ErrInvalidRating         = errors.New("rating must be between 1 and 5")
	ErrRatingRequiresWatched = errors.New("rating requires the entry to be watched")
)

// StatusUpdate is a partial update of a status entry. Nil fields are left
// unchanged. Setting Rating with no explicit Watched implies watched.
type StatusUpdate struct {
	Favorited   *bool `json:"favorited,omitempty"`
	InWatchlist *bool `json:"inWatchlist,omitempty"`
	Watched     *bool `json:"watched,omitempty"`
	Rating      *int  `json:"rating,omitempty"`
}

// Flag selects a status dimension for listing.
type Flag string

const (
	FlagFavorited   = Flag("favorited")
	FlagInWatchlist = Flag("inWatchlist")
	FlagWatched     = Flag("watched")
)

type activityAppender interface {
	Append(ctx context.Context, entry model.ActivityEntry) error
}

type Controller struct {
	store    store.Store
	activity activityAppender
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a ledger controller. The activity appender receives at most
// one entry per SetStatus call.
func New(st store.Store, activity activityAppender, logger *zap.Logger) *Controller {
	return &Controller{store: st, activity: activity, logger: logger, now: time.Now}
}

// SetStatus merges a partial update into the acting user's entry for the
// referenced media and persists it. Policy violations are rejected before
// any store call. The local view is refreshed by the subscription echo of
// the write, never optimistically, so a failed write is a no-op.
func (c *Controller) SetStatus(ctx context.Context, who model.Principal, ref model.MediaRef, update StatusUpdate) error {
	if update.Rating != nil {
		if *update.Rating < 1 || *update.Rating > 5 {
			return ErrInvalidRating
		}
		if update.Watched != nil && !*update.Watched {
			return ErrRatingRequiresWatched
		}
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
	if doc.MediaStates == nil {
		doc.MediaStates = map[string]model.MediaStatusEntry{}
	}

	prev := doc.MediaStates[ref.Key()]
	next := prev
	next.MediaRef = ref
	if update.Favorited != nil {
		next.Favorited = *update.Favorited
	}
	if update.InWatchlist != nil {
		next.InWatchlist = *update.InWatchlist
	}
	if update.Watched != nil {
		next.Watched = *update.Watched
	}
	if update.Rating != nil {
		next.Rating = update.Rating
		if update.Watched == nil {
			// A rating on an unwatched entry implies watching it.
			next.Watched = true
		}
	}
	if !next.Watched {
		next.Rating = nil
	}

	doc.MediaStates[ref.Key()] = next
	if err := c.store.Set(ctx, path, doc); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}

	entry, ok := c.transition(who, ref, prev, next, update)
	if !ok {
		return nil
	}
	if err := c.activity.Append(ctx, entry); err != nil {
		// Best effort: the persisted status change stands.
		c.logger.Error("failed to append activity entry",
			zap.String("userId", who.ID),
			zap.String("mediaKey", ref.Key()),
			zap.Error(err))
	}
	return nil
}

// transition evaluates the activity predicates against the previous
// entry. At most one activity fires per call: an explicit watched flip
// wins, then a rating change, then a watchlist addition. A watched
// transition implied by a rating does not count as an explicit flip.
func (c *Controller) transition(who model.Principal, ref model.MediaRef, prev, next model.MediaStatusEntry, update StatusUpdate) (model.ActivityEntry, bool) {
	entry := model.ActivityEntry{
		OwnerID:       who.ID,
		OwnerName:     who.DisplayName,
		OwnerPhotoRef: who.PhotoRef,
		Media:         ref,
		Timestamp:     c.now().UTC(),
	}
	switch {
	case update.Watched != nil && *update.Watched && !prev.Watched:
		entry.Type = model.ActivityTypeWatched
	case update.Rating != nil && next.Rating != nil &&
		(prev.Rating == nil || *prev.Rating != *next.Rating):
		entry.Type = model.ActivityTypeRated
		entry.Rating = next.Rating
	case update.InWatchlist != nil && *update.InWatchlist && !prev.InWatchlist:
		entry.Type = model.ActivityTypeAddedToWatchlist
	default:
		return model.ActivityEntry{}, false
	}
	return entry, true
}

// GetStatus returns the user's entry for a media item. Unknown keys yield
// the zero entry, not an error.
func (c *Controller) GetStatus(ctx context.Context, userID string, mediaType model.MediaType, mediaID string) (model.MediaStatusEntry, error) {
	states, err := c.states(ctx, userID)
	if err != nil {
		return model.MediaStatusEntry{}, err
	}
	key := model.MediaRef{MediaType: mediaType, MediaID: mediaID}.Key()
	return states[key], nil
}

// ListByFlag returns the entries with the given flag set.
func (c *Controller) ListByFlag(ctx context.Context, userID string, flag Flag) ([]model.MediaStatusEntry, error) {
	states, err := c.states(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []model.MediaStatusEntry
	for _, e := range states {
		switch flag {
		case FlagFavorited:
			if !e.Favorited {
				continue
			}
		case FlagInWatchlist:
			if !e.InWatchlist {
				continue
			}
		case FlagWatched:
			if !e.Watched {
				continue
			}
		default:
			return nil, fmt.Errorf("unknown flag %q", flag)
		}
		out = append(out, e)
	}
	return out, nil
}

// Entries returns every status entry of a user.
func (c *Controller) Entries(ctx context.Context, userID string) ([]model.MediaStatusEntry, error) {
	states, err := c.states(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.MediaStatusEntry, 0, len(states))
	for _, e := range states {
		out = append(out, e)
	}
	return out, nil
}

// Stats aggregates a user's watched entries.
func (c *Controller) Stats(ctx context.Context, userID string) (model.UserStats, error) {
	states, err := c.states(ctx, userID)
	if err != nil {
		return model.UserStats{}, err
	}
	var stats model.UserStats
	for _, e := range states {
		if !e.Watched {
			continue
		}
		switch e.MediaType {
		case model.MediaTypeMovie:
			stats.MoviesWatched++
		case model.MediaTypeSeries:
			stats.SeriesWatched++
		}
		stats.TotalMinutes += e.RuntimeMinutes
	}
	return stats, nil
}

// SubscribeStates delivers the user's full status map on every change.
func (c *Controller) SubscribeStates(userID string, fn func(map[string]model.MediaStatusEntry)) store.Subscription {
	return c.store.SubscribeDoc(store.Join("users", userID), func(snap store.DocSnapshot) {
		states := map[string]model.MediaStatusEntry{}
		if snap.Exists {
			var doc model.UserDoc
			if err := snap.Decode(&doc); err == nil && doc.MediaStates != nil {
				states = doc.MediaStates
			}
		}
		fn(states)
	})
}

func (c *Controller) states(ctx context.Context, userID string) (map[string]model.MediaStatusEntry, error) {
	stored, err := c.store.Get(ctx, store.Join("users", userID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return map[string]model.MediaStatusEntry{}, nil
		}
		return nil, fmt.Errorf("load user document: %w", err)
	}
	var doc model.UserDoc
	if err := stored.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode user document: %w", err)
	}
	if doc.MediaStates == nil {
		return map[string]model.MediaStatusEntry{}, nil
	}
	return doc.MediaStates, nil
}
