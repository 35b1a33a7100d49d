//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kwesidev/authclient"
)

// AutoMigrate runs database migrations for the token table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&TokenSetModel{})
}

// Store keeps the tokens of all sessions in the token_sets table.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ForSession returns the TokenStore of one session.
func (s *Store) ForSession(sessionID string) authclient.TokenStore {
	return &SessionStore{db: s.db, sessionID: sessionID}
}

// DeleteExpired removes sessions whose access token expired before cutoff
// and returns how many were removed. Sessions with unknown expiry are kept.
func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", cutoff).
		Delete(&TokenSetModel{})
	return result.RowsAffected, result.Error
}

// SessionStore is the row of one session.
type SessionStore struct {
	db        *gorm.DB
	sessionID string
}

func (s *SessionStore) Get(ctx context.Context) (*authclient.TokenSet, error) {
	var model TokenSetModel
	if err := s.db.WithContext(ctx).First(&model, "session_id = ?", s.sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToTokenSet(), nil
}

// Set upserts the row, so the whole set is replaced in one statement.
func (s *SessionStore) Set(ctx context.Context, tokens *authclient.TokenSet) error {
	model := TokenSetToModel(s.sessionID, tokens)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "issued_at", "expires_at", "updated_at"}),
	}).Create(model).Error
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&TokenSetModel{}, "session_id = ?", s.sessionID).Error
}
