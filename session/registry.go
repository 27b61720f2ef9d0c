package session

import (
	"errors"
	"sync"
)

// ErrAlreadyActive is returned by TryAcquire when the key already has a live
// session. Callers reject the new invocation instead of replacing the session.
var ErrAlreadyActive = errors.New("a game is already running in this channel")

// Registry is the process-wide map of live sessions. It is the only mutable
// structure shared across sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[Key]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[Key]*Session)}
}

// TryAcquire registers the session under its key, failing with
// ErrAlreadyActive when one is already registered.
func (r *Registry) TryAcquire(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.sessions[sess.Key]; busy {
		return ErrAlreadyActive
	}
	r.sessions[sess.Key] = sess
	return nil
}

// Get returns the live session for the key, if any.
func (r *Registry) Get(key Key) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[key]
	return sess, ok
}

// Release removes the key. Releasing an absent key is a no-op so every
// termination path can call it unconditionally.
func (r *Registry) Release(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
