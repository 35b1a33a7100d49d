package authclient

import (
	"sync"
	"time"
)

// Registry keeps one SessionManager per session ID so that concurrent
// requests of the same session share its state and refresh coordination.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*registryEntry
	factory  func(sessionID string) *SessionManager
	clock    func() time.Time
}

type registryEntry struct {
	manager  *SessionManager
	lastUsed time.Time
}

// NewRegistry creates a registry that builds managers with factory.
func NewRegistry(factory func(sessionID string) *SessionManager) *Registry {
	return &Registry{
		sessions: make(map[string]*registryEntry),
		factory:  factory,
		clock:    time.Now,
	}
}

// Get returns the manager for sessionID, creating it on first use.
func (r *Registry) Get(sessionID string) *SessionManager {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[sessionID]
	if !ok {
		entry = &registryEntry{manager: r.factory(sessionID)}
		r.sessions[sessionID] = entry
	}
	entry.lastUsed = r.clock()
	return entry.manager
}

// Remove drops the manager for sessionID. Stored tokens are left alone.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Sweep drops managers unused for longer than maxIdle and returns how many
// were dropped. A dropped session reloads from its store on next use.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock().Add(-maxIdle)
	dropped := 0
	for id, entry := range r.sessions {
		if entry.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of live managers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
