package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aaroflow/erpkey/pkg/logging"
)

// Store persists the single current credential as a JSON file.
//
// The cache holds at most one record: saving overwrites, clearing removes.
// Reads fail soft: a missing or corrupt file means "no credential cached",
// never an error, so the broker cannot crash on an unreadable cache.
type Store struct {
	path string
	mu   sync.Mutex
	log  *logging.Logger
}

// NewStore creates a store backed by the file at path.
func NewStore(path string, log *logging.Logger) *Store {
	return &Store{path: path, log: log}
}

// Load returns the cached credential, or nil when none is cached.
// Unreadable or corrupt cache files are logged and treated as absent.
func (s *Store) Load() *Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("credential cache unreadable, treating as absent: %v", err)
		}
		return nil
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		s.log.Warnf("credential cache corrupt, treating as absent: %v", err)
		return nil
	}
	if cred.Secret == "" {
		s.log.Warnf("credential cache record has no secret, treating as absent")
		return nil
	}
	return &cred
}

// Save atomically replaces the cached credential: the record is written to a
// temp file and renamed into place, so a concurrent Load never sees a
// half-written record.
func (s *Store) Save(cred *Credential) error {
	if cred == nil || cred.Secret == "" {
		return fmt.Errorf("refusing to cache a credential without a secret")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write credential cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace credential cache: %w", err)
	}

	s.log.Debugf("credential cached at %s, expires %s", s.path, cred.ExpiresAt.Format("2006-01-02 15:04:05"))
	return nil
}

// Clear removes the cached credential. Clearing an already-absent record is
// not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential cache: %w", err)
	}
	return nil
}

// Path returns the cache file location.
func (s *Store) Path() string {
	return s.path
}
