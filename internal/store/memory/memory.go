// Package memory implements the document store in process memory. It is
// the default backing for tests and single-user deployments.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/screenlogapp/screenlog/internal/store"
	"go.opentelemetry.io/otel"
)

const tracerID = "store-memory"

// Store keeps documents in a map of collections and delivers subscription
// snapshots synchronously in write order.
type Store struct {
	sync.RWMutex
	docs     map[string]map[string]store.Document
	notifier *store.Notifier
	now      func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		docs:     map[string]map[string]store.Document{},
		notifier: store.NewNotifier(),
		now:      time.Now,
	}
}

// Get retrieves the document at path.
func (s *Store) Get(ctx context.Context, path string) (store.Document, error) {
	s.RLock()
	defer s.RUnlock()

	_, span := otel.Tracer(tracerID).Start(ctx, "Store/Get")
	defer span.End()

	doc, ok := s.lookup(path)
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return doc, nil
}

// Set writes the full document at path.
func (s *Store) Set(ctx context.Context, path string, v any) error {
	_, span := otel.Tracer(tracerID).Start(ctx, "Store/Set")
	defer span.End()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Lock()
	s.apply(path, data)
	s.changed(path)
	s.Unlock()
	s.notifier.Flush()
	return nil
}

// Delete removes the document at path. Absent documents are a no-op.
func (s *Store) Delete(ctx context.Context, path string) error {
	_, span := otel.Tracer(tracerID).Start(ctx, "Store/Delete")
	defer span.End()

	s.Lock()
	if _, ok := s.lookup(path); !ok {
		s.Unlock()
		return nil
	}
	delete(s.docs[store.Collection(path)], store.DocID(path))
	s.changed(path)
	s.Unlock()
	s.notifier.Flush()
	return nil
}

// Add writes v under a fresh document id.
func (s *Store) Add(ctx context.Context, collection string, v any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, store.Join(collection, id), v); err != nil {
		return "", err
	}
	return id, nil
}

// Query returns the matching documents of a collection.
func (s *Store) Query(ctx context.Context, collection string, opts ...store.Option) ([]store.Document, error) {
	s.RLock()
	defer s.RUnlock()

	_, span := otel.Tracer(tracerID).Start(ctx, "Store/Query")
	defer span.End()

	return s.runQuery(collection, store.BuildQuery(opts...)), nil
}

// Batch starts an atomic multi-document write.
func (s *Store) Batch() store.Batch {
	return &batch{store: s}
}

// SubscribeDoc registers a document listener. The current snapshot is
// delivered immediately, then again on every change.
func (s *Store) SubscribeDoc(path string, fn func(store.DocSnapshot)) store.Subscription {
	s.Lock()
	sub := s.notifier.AddDocSub(path, fn)
	s.notifier.Changed([]string{path}, s.snapshot, s.runQuery)
	s.Unlock()
	s.notifier.Flush()
	return sub
}

// SubscribeQuery registers a collection listener. The current result set
// is delivered immediately, then again on every change to the collection.
func (s *Store) SubscribeQuery(collection string, fn func([]store.Document), opts ...store.Option) store.Subscription {
	s.Lock()
	sub := s.notifier.AddQuerySub(collection, store.BuildQuery(opts...), fn)
	s.notifier.Changed([]string{store.Join(collection, "")}, s.snapshot, s.runQuery)
	s.Unlock()
	s.notifier.Flush()
	return sub
}

func (s *Store) lookup(path string) (store.Document, bool) {
	col, ok := s.docs[store.Collection(path)]
	if !ok {
		return store.Document{}, false
	}
	doc, ok := col[store.DocID(path)]
	return doc, ok
}

func (s *Store) apply(path string, data json.RawMessage) {
	collection := store.Collection(path)
	col, ok := s.docs[collection]
	if !ok {
		col = map[string]store.Document{}
		s.docs[collection] = col
	}
	col[store.DocID(path)] = store.Document{
		ID:        store.DocID(path),
		Path:      path,
		Data:      data,
		UpdatedAt: s.now(),
	}
}

func (s *Store) changed(paths ...string) {
	s.notifier.Changed(paths, s.snapshot, s.runQuery)
}

func (s *Store) snapshot(path string) store.DocSnapshot {
	doc, ok := s.lookup(path)
	return store.DocSnapshot{Exists: ok, Document: doc}
}

func (s *Store) runQuery(collection string, q store.Query) []store.Document {
	col := s.docs[collection]
	docs := make([]store.Document, 0, len(col))
	for _, d := range col {
		docs = append(docs, d)
	}
	return q.Apply(docs)
}

type batchOp struct {
	path   string
	data   json.RawMessage
	delete bool
}

type batch struct {
	store *Store
	ops   []batchOp
	err   error
}

func (b *batch) Set(path string, v any) store.Batch {
	data, err := json.Marshal(v)
	if err != nil && b.err == nil {
		b.err = err
	}
	b.ops = append(b.ops, batchOp{path: path, data: data})
	return b
}

func (b *batch) Delete(path string) store.Batch {
	b.ops = append(b.ops, batchOp{path: path, delete: true})
	return b
}

// Commit applies every batched operation under a single lock acquisition,
// so readers and subscribers observe all of them or none.
func (b *batch) Commit(ctx context.Context) error {
	_, span := otel.Tracer(tracerID).Start(ctx, "Store/BatchCommit")
	defer span.End()

	if b.err != nil {
		return b.err
	}
	s := b.store
	s.Lock()
	paths := make([]string, 0, len(b.ops))
	for _, op := range b.ops {
		if op.delete {
			if _, ok := s.lookup(op.path); ok {
				delete(s.docs[store.Collection(op.path)], store.DocID(op.path))
			}
		} else {
			s.apply(op.path, op.data)
		}
		paths = append(paths, op.path)
	}
	s.changed(paths...)
	s.Unlock()
	s.notifier.Flush()
	return nil
}
