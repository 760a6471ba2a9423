package token

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps the bearer token in a file. Token re-reads the file on
// every call so a logout elsewhere is seen by the next connection attempt.
type FileStore struct {
	mu   sync.Mutex
	path string
	env  string
}

// NewFileStore creates a store at path. When the file is absent or empty the
// env variable, if named, is consulted.
func NewFileStore(path, env string) *FileStore {
	return &FileStore{path: path, env: env}
}

func (s *FileStore) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		if b, err := os.ReadFile(s.path); err == nil {
			if t := strings.TrimSpace(string(b)); t != "" {
				return t, true
			}
		}
	}
	if s.env != "" {
		if t := strings.TrimSpace(os.Getenv(s.env)); t != "" {
			return t, true
		}
	}
	return "", false
}

// Save persists token, creating the parent directory.
func (s *FileStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("token file not configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Clear removes the stored token.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}
