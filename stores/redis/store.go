// Package redis stores session tokens in Redis hashes, one per session, so
// several app instances can share sessions.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kwesidev/authclient"
)

// Config contains configuration options for the Redis store
type Config struct {
	// Client is the Redis client instance
	Client redis.UniversalClient

	// KeyPrefix is the prefix for all Redis keys
	// Default: "authclient:session:"
	KeyPrefix string

	// TTL expires idle sessions. Every Set renews it. 0 keeps sessions
	// until they are cleared.
	TTL time.Duration
}

// Store keeps the tokens of all sessions in one Redis database.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// New creates a new Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "authclient:session:"
	}
	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

// ForSession returns the TokenStore of one session.
func (s *Store) ForSession(sessionID string) authclient.TokenStore {
	return &SessionStore{store: s, key: s.keyPrefix + sessionID}
}

// SessionStore is the hash of one session.
type SessionStore struct {
	store *Store
	key   string
}

func (s *SessionStore) Get(ctx context.Context) (*authclient.TokenSet, error) {
	fields, err := s.store.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", s.key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return authclient.TokenSetFromFields(fields), nil
}

// Set replaces the hash in one MULTI/EXEC, so readers see the old set or
// the new one.
func (s *SessionStore) Set(ctx context.Context, tokens *authclient.TokenSet) error {
	fields := tokens.Fields()
	values := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		values = append(values, k, v)
	}

	_, err := s.store.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key, values...)
		if s.store.ttl > 0 {
			pipe.Expire(ctx, s.key, s.store.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", s.key, err)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.store.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", s.key, err)
	}
	return nil
}
