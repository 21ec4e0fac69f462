// Package mysql implements the document store on a MySQL JSON column.
// Live subscriptions are served by an in-process hub fed from local
// writes, which is sufficient for single-process deployments; writes from
// other processes are visible to reads but do not push snapshots.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/screenlogapp/screenlog/internal/store"
)

// Store persists documents in a single `documents` table keyed by
// (collection, id). Filtering and ordering happen in process after the
// collection scan; collections here are per-user sized.
type Store struct {
	db       *sql.DB
	notifier *store.Notifier
	writeMu  sync.Mutex
}

// New opens a connection with the given DSN and prepares the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		collection VARCHAR(512) NOT NULL,
		id VARCHAR(255) NOT NULL,
		data JSON NOT NULL,
		updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		PRIMARY KEY (collection, id)
	)`); err != nil {
		return nil, fmt.Errorf("prepare schema: %w", err)
	}
	return &Store{db: db, notifier: store.NewNotifier()}, nil
}

// Get retrieves the document at path.
func (s *Store) Get(ctx context.Context, path string) (store.Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT data, updated_at FROM documents WHERE collection = ? AND id = ?",
		store.Collection(path), store.DocID(path))
	var data []byte
	var updatedAt time.Time
	if err := row.Scan(&data, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, err
	}
	return store.Document{ID: store.DocID(path), Path: path, Data: data, UpdatedAt: updatedAt}, nil
}

// Set writes the full document at path.
func (s *Store) Set(ctx context.Context, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data)",
		store.Collection(path), store.DocID(path), data); err != nil {
		s.writeMu.Unlock()
		return err
	}
	s.changed(ctx, path)
	s.writeMu.Unlock()
	s.notifier.Flush()
	return nil
}

// Delete removes the document at path. Absent documents are a no-op.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.writeMu.Lock()
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		store.Collection(path), store.DocID(path))
	if err != nil {
		s.writeMu.Unlock()
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.writeMu.Unlock()
		return nil
	}
	s.changed(ctx, path)
	s.writeMu.Unlock()
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
	docs, err := s.scanCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	return store.BuildQuery(opts...).Apply(docs), nil
}

// Batch starts an atomic multi-document write backed by a transaction.
func (s *Store) Batch() store.Batch {
	return &batch{store: s}
}

// SubscribeDoc registers a document listener fed from local writes.
func (s *Store) SubscribeDoc(path string, fn func(store.DocSnapshot)) store.Subscription {
	s.writeMu.Lock()
	sub := s.notifier.AddDocSub(path, fn)
	s.notifier.Changed([]string{path}, s.docSnapshot(context.Background()), s.querySnapshot(context.Background()))
	s.writeMu.Unlock()
	s.notifier.Flush()
	return sub
}

// SubscribeQuery registers a collection listener fed from local writes.
func (s *Store) SubscribeQuery(collection string, fn func([]store.Document), opts ...store.Option) store.Subscription {
	s.writeMu.Lock()
	sub := s.notifier.AddQuerySub(collection, store.BuildQuery(opts...), fn)
	s.notifier.Changed([]string{store.Join(collection, "")}, s.docSnapshot(context.Background()), s.querySnapshot(context.Background()))
	s.writeMu.Unlock()
	s.notifier.Flush()
	return sub
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) scanCollection(ctx context.Context, collection string) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, data, updated_at FROM documents WHERE collection = ?", collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []store.Document
	for rows.Next() {
		var doc store.Document
		var data []byte
		if err := rows.Scan(&doc.ID, &data, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Path = store.Join(collection, doc.ID)
		doc.Data = data
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// changed is called with writeMu held so snapshot reads see this write
// before any later one. Callers flush after releasing writeMu.
func (s *Store) changed(ctx context.Context, paths ...string) {
	s.notifier.Changed(paths, s.docSnapshot(ctx), s.querySnapshot(ctx))
}

func (s *Store) docSnapshot(ctx context.Context) func(string) store.DocSnapshot {
	return func(path string) store.DocSnapshot {
		doc, err := s.Get(ctx, path)
		if err != nil {
			return store.DocSnapshot{}
		}
		return store.DocSnapshot{Exists: true, Document: doc}
	}
}

func (s *Store) querySnapshot(ctx context.Context) func(string, store.Query) []store.Document {
	return func(collection string, q store.Query) []store.Document {
		docs, err := s.scanCollection(ctx, collection)
		if err != nil {
			return nil
		}
		return q.Apply(docs)
	}
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

func (b *batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	s := b.store
	s.writeMu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return err
	}
	for _, op := range b.ops {
		if op.delete {
			_, err = tx.ExecContext(ctx,
				"DELETE FROM documents WHERE collection = ? AND id = ?",
				store.Collection(op.path), store.DocID(op.path))
		} else {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO documents (collection, id, data) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data)",
				store.Collection(op.path), store.DocID(op.path), op.data)
		}
		if err != nil {
			tx.Rollback()
			s.writeMu.Unlock()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		s.writeMu.Unlock()
		return err
	}
	paths := make([]string, 0, len(b.ops))
	for _, op := range b.ops {
		paths = append(paths, op.path)
	}
	s.changed(ctx, paths...)
	s.writeMu.Unlock()
	s.notifier.Flush()
	return nil
}
