package auth

import (
	"sync"

	"github.com/mmynk/splitqr/internal/models"
)

// State holds the signed-in identity on the client side. It starts loading and settles once
// the first sign-in attempt resolves.
type State struct {
	mu        sync.Mutex
	loading   bool
	current   *models.Identity
	token     string
	listeners map[int]func(*models.Identity)
	nextID    int
}

// NewState returns a State that is still loading.
func NewState() *State {
	return &State{loading: true, listeners: make(map[int]func(*models.Identity))}
}

// Loading reports whether no sign-in attempt has resolved yet.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Current returns a copy of the signed-in identity, or nil.
func (s *State) Current() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneIdentity(s.current)
}

// Token returns the bearer token of the current identity.
func (s *State) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Resolve records the outcome of a sign-in and notifies listeners.
func (s *State) Resolve(identity models.Identity, token string) {
	s.set(&identity, token)
}

// Settle ends loading without changing the identity, e.g. after a failed sign-in.
func (s *State) Settle() {
	s.mu.Lock()
	if !s.loading {
		s.mu.Unlock()
		return
	}
	s.loading = false
	current := cloneIdentity(s.current)
	listeners := s.snapshotListeners()
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(current)
	}
}

// SignOut clears the identity and notifies listeners.
func (s *State) SignOut() {
	s.set(nil, "")
}

// OnChange registers fn to run after every change; it receives nil when signed out.
func (s *State) OnChange(fn func(*models.Identity)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *State) set(identity *models.Identity, token string) {
	s.mu.Lock()
	s.loading = false
	s.current = cloneIdentity(identity)
	s.token = token
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cloneIdentity(identity))
	}
}

func (s *State) snapshotListeners() []func(*models.Identity) {
	out := make([]func(*models.Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func cloneIdentity(identity *models.Identity) *models.Identity {
	if identity == nil {
		return nil
	}
	c := *identity
	return &c
}
