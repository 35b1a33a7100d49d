//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	"github.com/kwesidev/authclient"
)

// TokenSetModel is the GORM model for the tokens of one session
type TokenSetModel struct {
	SessionID    string     `gorm:"primaryKey;size:128"`
	AccessToken  string     `gorm:"type:text;not null"`
	RefreshToken string     `gorm:"type:text;not null"`
	IssuedAt     time.Time  `gorm:"not null"`
	ExpiresAt    *time.Time `gorm:"index"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime"`
}

func (TokenSetModel) TableName() string {
	return "token_sets"
}

func (m *TokenSetModel) ToTokenSet() *authclient.TokenSet {
	t := &authclient.TokenSet{
		AccessToken:  m.AccessToken,
		RefreshToken: m.RefreshToken,
		IssuedAt:     m.IssuedAt,
	}
	if m.ExpiresAt != nil {
		t.ExpiresAt = *m.ExpiresAt
	}
	if !t.Complete() {
		return nil
	}
	return t
}

func TokenSetToModel(sessionID string, t *authclient.TokenSet) *TokenSetModel {
	m := &TokenSetModel{
		SessionID:    sessionID,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		IssuedAt:     t.IssuedAt,
	}
	if !t.ExpiresAt.IsZero() {
		expiresAt := t.ExpiresAt
		m.ExpiresAt = &expiresAt
	}
	return m
}
