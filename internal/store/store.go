// Package store defines the document store the core treats as its single
// source of truth: point reads/writes, bounded queries, atomic batches and
// live full-snapshot subscriptions over named collections.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

// Document is one stored record. Data holds the JSON-encoded payload.
type Document struct {
	ID        string
	Path      string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// Decode unmarshals the document payload into dst.
func (d Document) Decode(dst any) error {
	return json.Unmarshal(d.Data, dst)
}

// DocSnapshot is delivered to document subscribers on every change of the
// watched path. Exists is false when the document has been deleted or was
// never written.
type DocSnapshot struct {
	Exists bool
	Document
}

// Subscription is a cancellable handle for a live subscription. Releasing
// one subscription must not affect sibling subscriptions.
type Subscription interface {
	Unsubscribe()
}

// Batch collects writes that are committed atomically: either every
// operation is applied or none is.
type Batch interface {
	Set(path string, v any) Batch
	Delete(path string) Batch
	Commit(ctx context.Context) error
}

// Store is a document-oriented state store. Paths are slash-joined,
// alternating collection and document segments ("users/u1",
// "users/u1/following/u2").
type Store interface {
	// Get returns the document at path or ErrNotFound.
	Get(ctx context.Context, path string) (Document, error)
	// Set writes the full document at path, creating or replacing it.
	Set(ctx context.Context, path string, v any) error
	// Delete removes the document at path. Deleting an absent document
	// is a no-op.
	Delete(ctx context.Context, path string) error
	// Add writes v under a fresh document id in collection and returns
	// the id.
	Add(ctx context.Context, collection string, v any) (string, error)
	// Query returns the documents of a collection matching the options.
	Query(ctx context.Context, collection string, opts ...Option) ([]Document, error)
	// Batch starts an atomic multi-document write.
	Batch() Batch
	// SubscribeDoc delivers a full snapshot of the document at path on
	// every change, in store write order.
	SubscribeDoc(path string, fn func(DocSnapshot)) Subscription
	// SubscribeQuery delivers the full current result set on every
	// change to the watched collection, in store write order.
	SubscribeQuery(collection string, fn func([]Document), opts ...Option) Subscription
}

// Collection returns the collection a document path belongs to.
func Collection(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// DocID returns the final segment of a document path.
func DocID(path string) string {
	i := strings.LastIndex(path, "/")
	return path[i+1:]
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}
