package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Ensure Memory implements Store
var _ Store = (*Memory)(nil)

// Memory is an in-process Store. It is the default backend for tests and for running the
// server without persistence.
type Memory struct {
	mu     sync.RWMutex
	docs   map[Ref]record
	hub    *Hub
	closed bool
	now    func() time.Time
}

type record struct {
	fields    Fields
	version   int64
	updatedAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[Ref]record),
		hub:  NewHub(),
		now:  time.Now,
	}
}

// Hub exposes the watcher fan-out, mainly so tests can observe watcher counts.
func (m *Memory) Hub() *Hub { return m.hub }

// Close marks the store closed; later calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Get returns a copy of the document's current state.
func (m *Memory) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}
	return m.snapshotLocked(ref), nil
}

func (m *Memory) snapshotLocked(ref Ref) Snapshot {
	rec, ok := m.docs[ref]
	if !ok {
		return Snapshot{Ref: ref}
	}
	return Snapshot{
		Ref:       ref,
		Exists:    true,
		Version:   rec.version,
		UpdatedAt: rec.updatedAt,
		Fields:    rec.fields.Clone(),
	}
}

// Create writes a new document.
func (m *Memory) Create(ctx context.Context, ref Ref, fields Fields) (int64, error) {
	return m.write(ref, fields, func(rec record, exists bool, normalized Fields) (Fields, error) {
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, ref)
		}
		return normalized, nil
	})
}

// Set creates or replaces a document.
func (m *Memory) Set(ctx context.Context, ref Ref, fields Fields) (int64, error) {
	return m.write(ref, fields, func(rec record, exists bool, normalized Fields) (Fields, error) {
		return normalized, nil
	})
}

// Update merges fields into an existing document.
func (m *Memory) Update(ctx context.Context, ref Ref, fields Fields, opts ...UpdateOption) (int64, error) {
	options := NewUpdateOptions(opts...)
	return m.write(ref, fields, func(rec record, exists bool, normalized Fields) (Fields, error) {
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		if err := options.Check(ref, rec.version); err != nil {
			return nil, err
		}
		return Merge(rec.fields, normalized), nil
	})
}

// write runs apply under the write lock and publishes the result after unlocking.
func (m *Memory) write(ref Ref, fields Fields, apply func(rec record, exists bool, normalized Fields) (Fields, error)) (int64, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}
	normalized, err := Normalize(fields)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	rec, exists := m.docs[ref]
	next, err := apply(rec, exists, normalized)
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}
	rec = record{fields: next, version: rec.version + 1, updatedAt: m.now().UTC()}
	m.docs[ref] = rec
	snap := m.snapshotLocked(ref)
	m.mu.Unlock()

	m.hub.Publish(snap)
	return rec.version, nil
}

// Watch observes a document.
func (m *Memory) Watch(ctx context.Context, ref Ref, onSnapshot func(Snapshot), onError func(error)) func() {
	return m.hub.Subscribe(ctx, ref, func(ctx context.Context) (Snapshot, error) {
		return m.Get(ctx, ref)
	}, onSnapshot, onError)
}
