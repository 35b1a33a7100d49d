//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	"github.com/kwesidev/authclient"
)

const KindTokenSet = "TokenSet"

// TokenSetEntity is the Datastore entity for the tokens of one session
type TokenSetEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	AccessToken  string         `datastore:"access_token,noindex"`
	RefreshToken string         `datastore:"refresh_token,noindex"`
	IssuedAt     time.Time      `datastore:"issued_at,noindex"`
	ExpiresAt    time.Time      `datastore:"expires_at"` // zero when unknown
	UpdatedAt    time.Time      `datastore:"updated_at,noindex"`
}

func (e *TokenSetEntity) ToTokenSet() *authclient.TokenSet {
	t := &authclient.TokenSet{
		AccessToken:  e.AccessToken,
		RefreshToken: e.RefreshToken,
		IssuedAt:     e.IssuedAt,
		ExpiresAt:    e.ExpiresAt,
	}
	if !t.Complete() {
		return nil
	}
	return t
}

func TokenSetToEntity(t *authclient.TokenSet, key *datastore.Key) *TokenSetEntity {
	return &TokenSetEntity{
		Key:          key,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		IssuedAt:     t.IssuedAt,
		ExpiresAt:    t.ExpiresAt,
		UpdatedAt:    time.Now(),
	}
}
