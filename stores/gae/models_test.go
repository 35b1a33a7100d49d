package gae

import (
	"testing"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwesidev/authclient"
)

func TestTokenSetEntity_RoundTrip(t *testing.T) {
	key := datastore.NameKey(KindTokenSet, "sid", nil)
	now := time.Now()
	in := &authclient.TokenSet{AccessToken: "T1", RefreshToken: "R1", IssuedAt: now, ExpiresAt: now.Add(time.Minute)}

	e := TokenSetToEntity(in, key)
	assert.Equal(t, key, e.Key)

	out := e.ToTokenSet()
	require.NotNil(t, out)
	assert.Equal(t, "R1", out.RefreshToken)
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))
}

func TestTokenSetEntity_IncompleteReadsAsEmpty(t *testing.T) {
	e := &TokenSetEntity{AccessToken: "T1"}
	assert.Nil(t, e.ToTokenSet())
}

func TestStore_NamespacedKey(t *testing.T) {
	s := New(nil, "tenant-1")
	key := s.namespacedKey("sid")
	assert.Equal(t, KindTokenSet, key.Kind)
	assert.Equal(t, "sid", key.Name)
	assert.Equal(t, "tenant-1", key.Namespace)
}
