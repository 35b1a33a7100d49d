// Package scs keeps session tokens in an alexedwards/scs web session, the
// way a server side web app keeps them in its session.
//
// The store reads the session from the context passed to each call, so it
// must be used with contexts derived from a request that went through
// SessionManager.LoadAndSave.
package scs

import (
	"context"
	"sync"

	"github.com/alexedwards/scs/v2"

	"github.com/kwesidev/authclient"
)

var keys = []string{
	authclient.KeyAccessToken,
	authclient.KeyRefreshToken,
	authclient.KeyIssuedAt,
	authclient.KeyExpiresAt,
}

// Store is a TokenStore over the scs session carried by the context.
type Store struct {
	sessions *scs.SessionManager
	prefix   string

	// guards multi key updates so Get never sees half a token set
	mu sync.Mutex
}

// New creates a store over sessions. Keys are stored unprefixed, i.e. as
// "token", "refreshToken", "issuedAt" and "expiresAt".
func New(sessions *scs.SessionManager) *Store {
	return &Store{sessions: sessions}
}

// WithPrefix namespaces the session keys, e.g. "auth." for "auth.token".
func (s *Store) WithPrefix(prefix string) *Store {
	s.prefix = prefix
	return s
}

// ForSession ignores sessionID: the scs session is selected by the context.
func (s *Store) ForSession(string) authclient.TokenStore {
	return s
}

func (s *Store) Get(ctx context.Context) (*authclient.TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make(map[string]string, len(keys))
	for _, k := range keys {
		fields[k] = s.sessions.GetString(ctx, s.prefix+k)
	}
	return authclient.TokenSetFromFields(fields), nil
}

func (s *Store) Set(ctx context.Context, tokens *authclient.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := tokens.Fields()
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != "" {
			s.sessions.Put(ctx, s.prefix+k, v)
		} else {
			s.sessions.Remove(ctx, s.prefix+k)
		}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		s.sessions.Remove(ctx, s.prefix+k)
	}
	return nil
}
