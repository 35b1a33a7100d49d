package authclient

import (
	"context"
	"sync"
)

// TokenStore holds the TokenSet of exactly one session. Implementations
// must make Set and Clear atomic: a concurrent Get sees either the old set,
// the new set, or nothing, never a mix.
type TokenStore interface {
	// Get returns the stored tokens, or nil, nil if there are none.
	Get(ctx context.Context) (*TokenSet, error)

	// Set replaces the stored tokens wholesale.
	Set(ctx context.Context, tokens *TokenSet) error

	// Clear removes the stored tokens. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// MemoryTokenStore is an in-process TokenStore.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens *TokenSet
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get(ctx context.Context) (*TokenSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Clone(), nil
}

func (s *MemoryTokenStore) Set(ctx context.Context, tokens *TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens.Clone()
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
	return nil
}

// SessionStores hands out the TokenStore of each session, usually views
// onto one shared backend.
type SessionStores interface {
	ForSession(sessionID string) TokenStore
}

// SessionStoresFunc adapts a function to SessionStores.
type SessionStoresFunc func(sessionID string) TokenStore

func (f SessionStoresFunc) ForSession(sessionID string) TokenStore {
	return f(sessionID)
}
