package docstore

import (
	"context"
	"sync"
)

// Hub fans snapshots out to the watchers of each document. Backends publish after every
// committed write; watchers discard anything not newer than what they already delivered.
type Hub struct {
	mu       sync.Mutex
	watchers map[Ref]map[*watcher]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{watchers: make(map[Ref]map[*watcher]struct{})}
}

type watcher struct {
	mu        sync.Mutex
	pending   *Snapshot
	delivered int64
	signal    chan struct{}
}

func newWatcher() *watcher {
	return &watcher{delivered: -1, signal: make(chan struct{}, 1)}
}

// offer stores snap as the next delivery if it is newer than anything seen.
func (w *watcher) offer(snap Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if snap.Version <= w.delivered {
		return
	}
	if w.pending != nil && snap.Version <= w.pending.Version {
		return
	}
	snap = snap.Clone()
	w.pending = &snap
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) take() (Snapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return Snapshot{}, false
	}
	snap := *w.pending
	w.pending = nil
	w.delivered = snap.Version
	return snap, true
}

// Subscribe registers a watcher for ref and starts delivering to onSnapshot. load supplies
// the current state; it runs after registration so no concurrent write is missed.
func (h *Hub) Subscribe(
	ctx context.Context,
	ref Ref,
	load func(context.Context) (Snapshot, error),
	onSnapshot func(Snapshot),
	onError func(error),
) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	w := newWatcher()
	h.add(ref, w)

	go func() {
		defer h.remove(ref, w)

		snap, err := load(ctx)
		if err != nil {
			if ctx.Err() == nil && onError != nil {
				onError(err)
			}
			return
		}
		w.offer(snap)

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.signal:
				snap, ok := w.take()
				if ok && ctx.Err() == nil {
					onSnapshot(snap)
				}
			}
		}
	}()

	return sync.OnceFunc(cancel)
}

// Publish offers snap to every watcher of its document.
func (h *Hub) Publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers[snap.Ref] {
		w.offer(snap)
	}
}

// Watchers reports how many watchers are registered for ref.
func (h *Hub) Watchers(ref Ref) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[ref])
}

func (h *Hub) add(ref Ref, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watchers[ref] == nil {
		h.watchers[ref] = make(map[*watcher]struct{})
	}
	h.watchers[ref][w] = struct{}{}
}

func (h *Hub) remove(ref Ref, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.watchers[ref], w)
	if len(h.watchers[ref]) == 0 {
		delete(h.watchers, ref)
	}
}
