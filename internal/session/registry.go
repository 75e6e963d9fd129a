package session

import (
	"fmt"
	"sync"
)

// Registry tracks the open sessions and which one has focus. Commands that
// add entry points to "the current view" target the focused session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	focused  string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register adds s and focuses it. Registering an id twice replaces the
// earlier session without closing it.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; !ok {
		r.order = append(r.order, s.ID())
	}
	r.sessions[s.ID()] = s
	r.focused = s.ID()
}

// Unregister removes and returns the session with id. The caller closes it.
func (r *Registry) Unregister(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.focused == id {
		r.focused = ""
		if n := len(r.order); n > 0 {
			r.focused = r.order[n-1]
		}
	}
	return s, true
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// List returns the sessions in registration order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Focus marks the session with id as focused.
func (r *Registry) Focus(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("focus %s: %w", id, ErrSessionNotFound)
	}
	r.focused = id
	return nil
}

// Focused returns the focused session, if any.
func (r *Registry) Focused() (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[r.focused]
	return s, ok
}

// CloseAll unregisters and closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, id := range r.order {
		sessions = append(sessions, r.sessions[id])
	}
	r.sessions = make(map[string]*Session)
	r.order = nil
	r.focused = ""
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
