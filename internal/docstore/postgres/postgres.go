// Package postgres provides a PostgreSQL-backed implementation of docstore.Store using
// a pgx connection pool. Documents are jsonb rows; writes lock the row for the duration
// of their transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmynk/splitqr/internal/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    fields JSONB NOT NULL,
    version BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (collection, id)
);
`

// Ensure Store implements docstore.Store
var _ docstore.Store = (*Store)(nil)

// Store implements docstore.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	hub  *docstore.Hub
}

// New connects to dsn and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{pool: pool, hub: docstore.NewHub()}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Hub exposes the watcher fan-out.
func (s *Store) Hub() *docstore.Hub { return s.hub }

// Get retrieves a document by reference.
func (s *Store) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return docstore.Snapshot{}, err
	}
	return get(ctx, s.pool, ref, false)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func get(ctx context.Context, q querier, ref docstore.Ref, forUpdate bool) (docstore.Snapshot, error) {
	query := "SELECT fields, version, updated_at FROM documents WHERE collection = $1 AND id = $2"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		raw       []byte
		version   int64
		updatedAt time.Time
	)
	err := q.QueryRow(ctx, query, ref.Collection, ref.ID).Scan(&raw, &version, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Snapshot{Ref: ref}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("failed to get document %s: %w", ref, err)
	}

	fields := docstore.Fields{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("failed to decode document %s: %w", ref, err)
	}
	return docstore.Snapshot{
		Ref:       ref,
		Exists:    true,
		Version:   version,
		UpdatedAt: updatedAt.UTC(),
		Fields:    fields,
	}, nil
}

// Create inserts a new document. A concurrent insert of the same reference surfaces as a
// unique violation, reported as ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, ref docstore.Ref, fields docstore.Fields) (int64, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}
	normalized, err := docstore.Normalize(fields)
	if err != nil {
		return 0, err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return 0, fmt.Errorf("failed to encode document %s: %w", ref, err)
	}

	var updatedAt time.Time
	err = s.pool.QueryRow(ctx,
		"INSERT INTO documents (collection, id, fields, version, updated_at) VALUES ($1, $2, $3, 1, now()) RETURNING updated_at",
		ref.Collection, ref.ID, raw,
	).Scan(&updatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", docstore.ErrAlreadyExists, ref)
		}
		return 0, fmt.Errorf("failed to insert document %s: %w", ref, err)
	}

	s.hub.Publish(docstore.Snapshot{Ref: ref, Exists: true, Version: 1, UpdatedAt: updatedAt.UTC(), Fields: normalized})
	return 1, nil
}

// Set creates or replaces a document.
func (s *Store) Set(ctx context.Context, ref docstore.Ref, fields docstore.Fields) (int64, error) {
	return s.write(ctx, ref, func(docstore.Snapshot) (docstore.Fields, error) {
		return fields, nil
	})
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, ref docstore.Ref, fields docstore.Fields, opts ...docstore.UpdateOption) (int64, error) {
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

func (s *Store) write(ctx context.Context, ref docstore.Ref, fn func(current docstore.Snapshot) (docstore.Fields, error)) (int64, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := get(ctx, tx, ref, true)
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

	var (
		version   int64
		updatedAt time.Time
	)
	err = tx.QueryRow(ctx, `
		INSERT INTO documents (collection, id, fields, version, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (collection, id) DO UPDATE
		SET fields = EXCLUDED.fields, version = documents.version + 1, updated_at = now()
		RETURNING version, updated_at`,
		ref.Collection, ref.ID, raw,
	).Scan(&version, &updatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to write document %s: %w", ref, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.hub.Publish(docstore.Snapshot{Ref: ref, Exists: true, Version: version, UpdatedAt: updatedAt.UTC(), Fields: next})
	return version, nil
}

// Watch observes a document.
func (s *Store) Watch(ctx context.Context, ref docstore.Ref, onSnapshot func(docstore.Snapshot), onError func(error)) func() {
	return s.hub.Subscribe(ctx, ref, func(ctx context.Context) (docstore.Snapshot, error) {
		return s.Get(ctx, ref)
	}, onSnapshot, onError)
}
