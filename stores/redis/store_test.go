package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwesidev/authclient"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSessionStore_GetSetClear(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store, err := New(Config{Client: client})
	require.NoError(t, err)
	s := store.ForSession("abc")

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, s.Set(ctx, &authclient.TokenSet{AccessToken: "T1", RefreshToken: "R1", IssuedAt: now, ExpiresAt: now.Add(time.Minute)}))
	assert.Equal(t, "T1", mr.HGet("authclient:session:abc", "token"))

	got, err = s.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "R1", got.RefreshToken)
	assert.True(t, now.Add(time.Minute).Equal(got.ExpiresAt))

	require.NoError(t, s.Clear(ctx))
	assert.False(t, mr.Exists("authclient:session:abc"))
	got, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_SetReplacesWholeSet(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store, err := New(Config{Client: client})
	require.NoError(t, err)
	s := store.ForSession("abc")

	require.NoError(t, s.Set(ctx, &authclient.TokenSet{AccessToken: "T1", RefreshToken: "R1", ExpiresAt: time.Now().Add(time.Minute)}))
	require.NoError(t, s.Set(ctx, &authclient.TokenSet{AccessToken: "T2", RefreshToken: "R2"}))

	assert.Equal(t, "", mr.HGet("authclient:session:abc", "expiresAt"))
	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T2", got.AccessToken)
	assert.True(t, got.ExpiresAt.IsZero())
}

func TestSessionStore_TTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store, err := New(Config{Client: client, KeyPrefix: "s:", TTL: time.Hour})
	require.NoError(t, err)
	s := store.ForSession("abc")

	require.NoError(t, s.Set(ctx, &authclient.TokenSet{AccessToken: "T1", RefreshToken: "R1"}))
	assert.Equal(t, time.Hour, mr.TTL("s:abc"))

	mr.FastForward(2 * time.Hour)
	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStore_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store, err := New(Config{Client: client})
	require.NoError(t, err)

	require.NoError(t, store.ForSession("abc").Set(ctx, &authclient.TokenSet{AccessToken: "T1", RefreshToken: "R1"}))

	// a second manager on another instance picks the session up
	m := authclient.NewSessionManager(nil, store.ForSession("abc"))
	token, err := m.EnsureValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", token)
}
