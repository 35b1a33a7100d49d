// Package fs stores session tokens as JSON files, one file per session.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kwesidev/authclient"
)

// Store keeps the token files of all sessions in one directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir. If dir is empty, defaults to
// <user config dir>/<appName>/sessions.
func New(dir, appName string) (*Store, error) {
	if dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "authclient"
		}
		dir = filepath.Join(configDir, appName, "sessions")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory holding the token files.
func (s *Store) Dir() string {
	return s.dir
}

// ForSession returns the TokenStore of one session.
func (s *Store) ForSession(sessionID string) authclient.TokenStore {
	return &SessionStore{path: s.sessionPath(sessionID)}
}

// session ids are hashed so they cannot escape the directory
func (s *Store) sessionPath(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

// SessionStore is the token file of one session. Writes replace the file
// atomically, so readers never see a partial token set.
type SessionStore struct {
	path string
}

// NewSessionStore stores one session's tokens at path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Path returns the path to the token file
func (s *SessionStore) Path() string {
	return s.path
}

func (s *SessionStore) Get(ctx context.Context) (*authclient.TokenSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tokens authclient.TokenSet
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if !tokens.Complete() {
		return nil, nil
	}
	return &tokens, nil
}

func (s *SessionStore) Set(ctx context.Context, tokens *authclient.TokenSet) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize tokens: %w", err)
	}
	return writeAtomicFile(s.path, data)
}

func (s *SessionStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeAtomicFile writes data to a temp file with owner only permissions
// and renames it into place.
func writeAtomicFile(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
