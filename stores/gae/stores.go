//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/kwesidev/authclient"
)

// Store keeps the tokens of all sessions as TokenSet entities.
type Store struct {
	client    *datastore.Client
	namespace string
}

// New creates a Datastore-backed store in namespace ("" for the default).
func New(client *datastore.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

// ForSession returns the TokenStore of one session.
func (s *Store) ForSession(sessionID string) authclient.TokenStore {
	return &SessionStore{client: s.client, key: s.namespacedKey(sessionID)}
}

func (s *Store) namespacedKey(name string) *datastore.Key {
	key := datastore.NameKey(KindTokenSet, name, nil)
	key.Namespace = s.namespace
	return key
}

// DeleteExpired removes sessions whose access token expired before cutoff
// and returns how many were removed. Sessions with unknown expiry are kept.
func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	query := datastore.NewQuery(KindTokenSet).
		FilterField("expires_at", ">", time.Time{}).
		FilterField("expires_at", "<", cutoff).
		KeysOnly()
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	var keys []*datastore.Key
	it := s.client.Run(ctx, query)
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, err
		}
		keys = append(keys, key)
	}

	return deleteInBatches(ctx, keys, maxBatchSize, s.client.DeleteMulti)
}

// maxBatchSize is the most keys Datastore accepts in one DeleteMulti.
const maxBatchSize = 500

// deleteInBatches deletes keys in chunks of at most size and returns how
// many were deleted before the first failure.
func deleteInBatches(ctx context.Context, keys []*datastore.Key, size int, del func(context.Context, []*datastore.Key) error) (int, error) {
	deleted := 0
	for len(keys) > 0 {
		n := min(size, len(keys))
		if err := del(ctx, keys[:n]); err != nil {
			return deleted, err
		}
		deleted += n
		keys = keys[n:]
	}
	return deleted, nil
}

// SessionStore is the entity of one session. Puts replace the entity
// whole, so readers see the old set or the new one.
type SessionStore struct {
	client *datastore.Client
	key    *datastore.Key
}

func (s *SessionStore) Get(ctx context.Context) (*authclient.TokenSet, error) {
	var entity TokenSetEntity
	if err := s.client.Get(ctx, s.key, &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, err
	}
	return entity.ToTokenSet(), nil
}

func (s *SessionStore) Set(ctx context.Context, tokens *authclient.TokenSet) error {
	_, err := s.client.Put(ctx, s.key, TokenSetToEntity(tokens, s.key))
	return err
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.client.Delete(ctx, s.key)
}
