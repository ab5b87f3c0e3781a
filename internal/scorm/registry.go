package scorm

import (
	"errors"
	"sync"
)

var (
	// ErrSessionNotFound means no session is attached under the key.
	ErrSessionNotFound = errors.New("scorm session not found")
	// ErrSessionAttached means a live session already owns the key.
	ErrSessionAttached = errors.New("scorm session already attached")
)

// Registry binds registration keys to live sessions. It replaces the
// page-global API object convention with explicit handles: the protocol
// expects exactly one runtime object per embedding context, so a key
// holding a live session refuses a second Attach instead of silently
// clobbering it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Attach binds a session under a key. A key already holding a live
// session is refused with ErrSessionAttached; a terminated session is
// replaced and closed.
func (r *Registry) Attach(key string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[key]; ok {
		if !existing.Terminated() {
			return ErrSessionAttached
		}
		existing.Close()
	}
	r.sessions[key] = s
	return nil
}

// Lookup returns the session attached under a key.
func (r *Registry) Lookup(key string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Detach removes a key and closes its session. Detaching an unknown key
// is a no-op.
func (r *Registry) Detach(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		s.Close()
		delete(r.sessions, key)
	}
}

// DetachAll closes and removes every attached session. Hosts use it on
// shutdown; suspended attempts resume from their last committed snapshot.
func (r *Registry) DetachAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, s := range r.sessions {
		s.Close()
		delete(r.sessions, k)
	}
}

// Len returns the number of attached sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Range calls fn for each attached session until fn returns false.
// Iteration order is unspecified.
func (r *Registry) Range(fn func(key string, s *Session) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for k, s := range r.sessions {
		if !fn(k, s) {
			return
		}
	}
}
