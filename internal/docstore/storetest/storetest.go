// Package storetest is the behavioral contract every docstore backend must satisfy.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitqr/internal/docstore"
)

// Run exercises store behavior against fresh stores from newStore.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Helper()

	t.Run("Get missing document", func(t *testing.T) {
		store := newStore(t)
		snap, err := store.Get(context.Background(), docstore.Doc("bills", "missing"))
		require.NoError(t, err)
		assert.False(t, snap.Exists)
		assert.Zero(t, snap.Version)
		assert.Equal(t, docstore.Doc("bills", "missing"), snap.Ref)
	})

	t.Run("Create then Get round trips JSON-shaped fields", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		ref := docstore.Doc("bills", "b1")

		version, err := store.Create(ctx, ref, sampleFields())
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)

		snap, err := store.Get(ctx, ref)
		require.NoError(t, err)
		assert.True(t, snap.Exists)
		assert.Equal(t, int64(1), snap.Version)
		assert.False(t, snap.UpdatedAt.IsZero())
		assert.Equal(t, normalized(t), snap.Fields)
	})

	t.Run("Create rejects duplicates", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		ref := docstore.Doc("bills", "dup")

		_, err := store.Create(ctx, ref, sampleFields())
		require.NoError(t, err)
		_, err = store.Create(ctx, ref, sampleFields())
		assert.ErrorIs(t, err, docstore.ErrAlreadyExists)
	})

	t.Run("Set replaces the whole document", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		ref := docstore.Doc("bills", "set")

		_, err := store.Set(ctx, ref, sampleFields())
		require.NoError(t, err)
		version, err := store.Set(ctx, ref, docstore.Fields{"hotelName": "replaced"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)

		snap, err := store.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, docstore.Fields{"hotelName": "replaced"}, snap.Fields)
	})

	t.Run("Update merges top-level fields", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		ref := docstore.Doc("bills", "merge")

		_, err := store.Create(ctx, ref, sampleFields())
		require.NoError(t, err)
		version, err := store.Update(ctx, ref, docstore.Fields{"gst": 12, "status": "closed"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)

		snap, err := store.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, 12.0, snap.Fields["gst"])
		assert.Equal(t, "closed", snap.Fields["status"])
		assert.Equal(t, "hotel A", snap.Fields["hotelName"])
		assert.Equal(t, normalized(t)["items"], snap.Fields["items"])
	})

	t.Run("Update missing document", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Update(context.Background(), docstore.Doc("bills", "nope"), docstore.Fields{"gst": 1})
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("Update honors version precondition", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		ref := docstore.Doc("bills", "cas")

		_, err := store.Create(ctx, ref, sampleFields())
		require.NoError(t, err)

		_, err = store.Update(ctx, ref, docstore.Fields{"gst": 1}, docstore.WithVersion(1))
		require.NoError(t, err)

		_, err = store.Update(ctx, ref, docstore.Fields{"gst": 2}, docstore.WithVersion(1))
		assert.ErrorIs(t, err, docstore.ErrConflict)

		snap, err := store.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, 1.0, snap.Fields["gst"])
		assert.Equal(t, int64(2), snap.Version)
	})

	t.Run("Conditional updates never lose writes", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		ref := docstore.Doc("bills", "counter")

		_, err := store.Create(ctx, ref, docstore.Fields{"count": 0})
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					snap, err := store.Get(ctx, ref)
					if !assert.NoError(t, err) {
						return
					}
					count, _ := snap.Fields["count"].(float64)
					_, err = store.Update(ctx, ref, docstore.Fields{"count": count + 1}, docstore.WithVersion(snap.Version))
					if errors.Is(err, docstore.ErrConflict) {
						continue
					}
					assert.NoError(t, err)
					return
				}
			}()
		}
		wg.Wait()

		snap, err := store.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, float64(writers), snap.Fields["count"])
		assert.Equal(t, int64(writers+1), snap.Version)
	})

	t.Run("Watch delivers current state then changes", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		ref := docstore.Doc("bills", "watched")

		rec := newRecorder()
		stop := store.Watch(ctx, ref, rec.snapshot, rec.error)
		defer stop()

		first := rec.next(t)
		assert.False(t, first.Exists)

		_, err := store.Create(ctx, ref, sampleFields())
		require.NoError(t, err)
		_, err = store.Update(ctx, ref, docstore.Fields{"gst": 99})
		require.NoError(t, err)

		rec.waitForVersion(t, 2)
		last := rec.last()
		assert.Equal(t, 99.0, last.Fields["gst"])
		assert.NoError(t, rec.err())
	})

	t.Run("Watch stops delivering after stop", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		ref := docstore.Doc("bills", "stopped")

		_, err := store.Create(ctx, ref, sampleFields())
		require.NoError(t, err)

		rec := newRecorder()
		stop := store.Watch(ctx, ref, rec.snapshot, rec.error)
		rec.waitForVersion(t, 1)
		stop()
		stop()

		_, err = store.Update(ctx, ref, docstore.Fields{"gst": 5})
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, int64(1), rec.last().Version)
	})

	t.Run("Invalid references are rejected", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), docstore.Doc("", "x"))
		assert.ErrorIs(t, err, docstore.ErrInvalidRef)
		_, err = store.Set(context.Background(), docstore.Doc("bills", "a/b"), docstore.Fields{})
		assert.ErrorIs(t, err, docstore.ErrInvalidRef)
	})
}

func sampleFields() docstore.Fields {
	return docstore.Fields{
		"hotelName":     "hotel A",
		"serviceCharge": 50,
		"gst":           30.5,
		"status":        "active",
		"items": []any{
			map[string]any{"id": "item1", "name": "Pizza", "qty": 1, "price": 450, "assignedTo": []any{"u1", "u2"}},
			map[string]any{"id": "item2", "name": "Fries", "qty": 2, "price": 280, "assignedTo": []any{}},
		},
		"participants": []any{
			map[string]any{"uid": "u1", "initials": "AB", "color": "#E53935", "name": "Ab"},
		},
		"flags": map[string]any{"shared": true, "note": nil},
	}
}

func normalized(t *testing.T) docstore.Fields {
	t.Helper()
	fields, err := docstore.Normalize(sampleFields())
	require.NoError(t, err)
	return fields
}

type recorder struct {
	mu    sync.Mutex
	snaps []docstore.Snapshot
	fail  error
	ch    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 64)}
}

func (r *recorder) snapshot(s docstore.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

func (r *recorder) error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *recorder) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fail
}

func (r *recorder) last() docstore.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return docstore.Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) next(t *testing.T) docstore.Snapshot {
	t.Helper()
	select {
	case <-r.ch:
		return r.last()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return docstore.Snapshot{}
	}
}

func (r *recorder) waitForVersion(t *testing.T, version int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.last().Version >= version
	}, 5*time.Second, 10*time.Millisecond)
}
