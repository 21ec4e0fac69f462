package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type MediaType string

const (
	MediaTypeMovie  = MediaType("movie")
	MediaTypeSeries = MediaType("series")
	// MediaTypePerson shows up in catalog responses only; the ledger
	// never stores it.
	MediaTypePerson = MediaType("person")
)

// Principal is the identity a session acts as. Created at sign-up,
// mutated by profile edits.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	PhotoRef    string `json:"photoRef,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

// MediaRef is an immutable snapshot of catalog metadata, copied at the
// moment a status or list action occurs. It is never synced back to the
// canonical catalog data.
type MediaRef struct {
	MediaType      MediaType `json:"mediaType"`
	MediaID        string    `json:"mediaId"`
	Title          string    `json:"title"`
	PosterRef      string    `json:"posterRef,omitempty"`
	RuntimeMinutes int       `json:"runtimeMinutes,omitempty"`
	Genres         []string  `json:"genres,omitempty"`
}

// Key returns the stable ledger/list key combining media type and id.
func (m MediaRef) Key() string {
	return fmt.Sprintf("%s_%s", m.MediaType, m.MediaID)
}

// MediaStatusEntry holds one user's personal status for a single media
// item. Absence of an entry is equivalent to the zero value.
// Invariant: Watched == false implies Rating == nil.
type MediaStatusEntry struct {
	MediaRef
	Favorited   bool `json:"favorited"`
	InWatchlist bool `json:"inWatchlist"`
	Watched     bool `json:"watched"`
	Rating      *int `json:"rating,omitempty"`
}

type ActivityType string

const (
	ActivityTypeWatched          = ActivityType("watched")
	ActivityTypeRated            = ActivityType("rated")
	ActivityTypeAddedToWatchlist = ActivityType("added_to_watchlist")
)

// UnmarshalJSON rejects unknown activity variants instead of silently
// defaulting.
func (t *ActivityType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch ActivityType(s) {
	case ActivityTypeWatched, ActivityTypeRated, ActivityTypeAddedToWatchlist:
		*t = ActivityType(s)
		return nil
	}
	return fmt.Errorf("unknown activity type %q", s)
}

// ActivityEntry is an append-only record of a qualifying ledger
// transition. Immutable once written.
type ActivityEntry struct {
	ID            string       `json:"id,omitempty"`
	OwnerID       string       `json:"ownerId"`
	OwnerName     string       `json:"ownerName"`
	OwnerPhotoRef string       `json:"ownerPhotoRef,omitempty"`
	Type          ActivityType `json:"type"`
	Media         MediaRef     `json:"media"`
	Rating        *int         `json:"rating,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// FollowEdge is the payload stored on both sides of a directed follow
// relationship.
type FollowEdge struct {
	CreatedAt time.Time `json:"createdAt"`
}

type NotificationType string

const (
	NotificationTypeNewFollower = NotificationType("new_follower")
	NotificationTypeNewComment  = NotificationType("new_comment_on_my_media")
)

// UnmarshalJSON rejects unknown notification variants instead of silently
// defaulting.
func (t *NotificationType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch NotificationType(s) {
	case NotificationTypeNewFollower, NotificationTypeNewComment:
		*t = NotificationType(s)
		return nil
	}
	return fmt.Errorf("unknown notification type %q", s)
}

// Notification is created by the actor that causes an event and read by
// the recipient. Read is monotonic: once true it never reverts.
type Notification struct {
	ID             string           `json:"id,omitempty"`
	RecipientID    string           `json:"recipientId"`
	SenderID       string           `json:"senderId"`
	SenderName     string           `json:"senderName"`
	SenderPhotoRef string           `json:"senderPhotoRef,omitempty"`
	Type           NotificationType `json:"type"`
	Message        string           `json:"message"`
	Link           string           `json:"link,omitempty"`
	Read           bool             `json:"read"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// CustomList is a user-defined named collection of media references.
// Items are unique by MediaRef.Key.
type CustomList struct {
	ID          string     `json:"id,omitempty"`
	OwnerID     string     `json:"ownerId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IsPublic    bool       `json:"isPublic"`
	Items       []MediaRef `json:"items"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Contains reports whether the list already holds a media reference with
// the same key.
func (l CustomList) Contains(ref MediaRef) bool {
	for _, it := range l.Items {
		if it.Key() == ref.Key() {
			return true
		}
	}
	return false
}

// Comment is a user comment attached to a media item.
type Comment struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	UserPhotoRef string    `json:"userPhotoRef,omitempty"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Review is a longer-form user review of a media item with an optional
// star rating.
type Review struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	UserPhotoRef string    `json:"userPhotoRef,omitempty"`
	Text         string    `json:"text"`
	Rating       *int      `json:"rating,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RecommendationCandidate is an ephemeral catalog item proposed to the
// user. Computed per request, never persisted.
type RecommendationCandidate struct {
	MediaType       MediaType `json:"mediaType"`
	MediaID         string    `json:"mediaId"`
	Title           string    `json:"title"`
	PosterRef       string    `json:"posterRef,omitempty"`
	BackdropRef     string    `json:"backdropRef,omitempty"`
	Year            string    `json:"year,omitempty"`
	AggregateRating float64   `json:"aggregateRating,omitempty"`
}

// UserDoc is the users/{id} document: profile plus the per-media status
// map keyed by MediaRef.Key.
type UserDoc struct {
	Profile     *Principal                  `json:"profile,omitempty"`
	MediaStates map[string]MediaStatusEntry `json:"mediaStates,omitempty"`
	CreatedAt   time.Time                   `json:"createdAt"`
}

// UserStats aggregates a user's watched media.
type UserStats struct {
	MoviesWatched int `json:"moviesWatched"`
	SeriesWatched int `json:"seriesWatched"`
	TotalMinutes  int `json:"totalMinutes"`
}
