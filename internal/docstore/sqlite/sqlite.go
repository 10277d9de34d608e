// Package sqlite provides a SQLite-backed implementation of docstore.Store.
//
// Documents are stored as JSON text with a version column; every write is a single
// transaction and conditional updates compare the version inside it. Watches are served
// by an in-process hub, so they observe writes made through this store only.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/splitqr/internal/docstore"
)

// Ensure SQLiteStore implements docstore.Store
var _ docstore.Store = (*SQLiteStore)(nil)

// SQLiteStore implements docstore.Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	hub *docstore.Hub
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, hub: docstore.NewHub()}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Hub exposes the watcher fan-out.
func (s *SQLiteStore) Hub() *docstore.Hub { return s.hub }

// Get retrieves a document by reference.
func (s *SQLiteStore) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return docstore.Snapshot{}, err
	}
	return s.get(ctx, s.db, ref)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) get(ctx context.Context, q queryer, ref docstore.Ref) (docstore.Snapshot, error) {
	var (
		raw       string
		version   int64
		updatedAt int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT fields, version, updated_at FROM documents WHERE collection = ? AND id = ?",
		ref.Collection, ref.ID,
	).Scan(&raw, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Snapshot{Ref: ref}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("failed to get document %s: %w", ref, err)
	}

	fields := docstore.Fields{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("failed to decode document %s: %w", ref, err)
	}

	return docstore.Snapshot{
		Ref:       ref,
		Exists:    true,
		Version:   version,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
		Fields:    fields,
	}, nil
}

// Create inserts a new document.
func (s *SQLiteStore) Create(ctx context.Context, ref docstore.Ref, fields docstore.Fields) (int64, error) {
	return s.write(ctx, ref, func(current docstore.Snapshot) (docstore.Fields, error) {
		if current.Exists {
			return nil, fmt.Errorf("%w: %s", docstore.ErrAlreadyExists, ref)
		}
		return fields, nil
	})
}

// Set creates or replaces a document.
func (s *SQLiteStore) Set(ctx context.Context, ref docstore.Ref, fields docstore.Fields) (int64, error) {
	return s.write(ctx, ref, func(docstore.Snapshot) (docstore.Fields, error) {
		return fields, nil
	})
}

// Update merges fields into an existing document.
func (s *SQLiteStore) Update(ctx context.Context, ref docstore.Ref, fields docstore.Fields, opts ...docstore.UpdateOption) (int64, error) {
	options := docstore.NewUpdateOptions(opts...)
	return s.write(ctx, ref, func(current docstore.Snapshot) (docstore.Fields, error) {
		if !current.Exists {
			return nil, fmt.Errorf("%w: %s", docstore.ErrNotFound, ref)
		}
		if err := options.Check(ref, current.Version); err != nil {
			return nil, err
		}
		return docstore.Merge(current.Fields, fields), nil
	})
}

// write reads the current row, applies fn and stores the result, all in one transaction.
func (s *SQLiteStore) write(ctx context.Context, ref docstore.Ref, fn func(current docstore.Snapshot) (docstore.Fields, error)) (int64, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.get(ctx, tx, ref)
	if err != nil {
		return 0, err
	}

	next, err := fn(current)
	if err != nil {
		return 0, err
	}
	next, err = docstore.Normalize(next)
	if err != nil {
		return 0, err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return 0, fmt.Errorf("failed to encode document %s: %w", ref, err)
	}

	version := current.Version + 1
	updatedAt := time.Now().UTC()

	if current.Exists {
		res, err := tx.ExecContext(ctx,
			"UPDATE documents SET fields = ?, version = ?, updated_at = ? WHERE collection = ? AND id = ? AND version = ?",
			string(raw), version, updatedAt.UnixMilli(), ref.Collection, ref.ID, current.Version,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to update document %s: %w", ref, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return 0, fmt.Errorf("%w: %s changed during write", docstore.ErrConflict, ref)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO documents (collection, id, fields, version, updated_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING",
			ref.Collection, ref.ID, string(raw), version, updatedAt.UnixMilli(),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert document %s: %w", ref, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return 0, fmt.Errorf("%w: %s", docstore.ErrAlreadyExists, ref)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.hub.Publish(docstore.Snapshot{
		Ref:       ref,
		Exists:    true,
		Version:   version,
		UpdatedAt: updatedAt.Truncate(time.Millisecond),
		Fields:    next,
	})
	return version, nil
}

// Watch observes a document.
func (s *SQLiteStore) Watch(ctx context.Context, ref docstore.Ref, onSnapshot func(docstore.Snapshot), onError func(error)) func() {
	return s.hub.Subscribe(ctx, ref, func(ctx context.Context) (docstore.Snapshot, error) {
		return s.Get(ctx, ref)
	}, onSnapshot, onError)
}
