// Package pathstore durably remembers the user's chosen storage root.
//
// The record lives in a small JSON preference file under the host's user
// config directory, managed through viper so the same machinery serves tests
// (which point it at a temp dir) and production.
package pathstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"github.com/openshelf/bookreader/internal/entities"
)

// KeyStorageRoot is the preference key holding the storage root path.
const KeyStorageRoot = "bookreader.storageRoot"

const prefFileName = "bookreader.json"

// Store persists the configured storage root across launches.
type Store struct {
	mu   sync.Mutex
	v    *viper.Viper
	file string
}

// New creates a store backed by a preference file under configDir. The
// directory is created if absent; an existing preference file is loaded.
func New(configDir string) (*Store, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	file := filepath.Join(configDir, prefFileName)
	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read preferences: %w", err)
		}
		// First run: no preference file yet.
	}

	return &Store{v: v, file: file}, nil
}

// NewDefault creates a store under the OS user config directory.
func NewDefault() (*Store, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user config dir: %w", err)
	}
	return New(filepath.Join(base, "bookreader"))
}

// ConfiguredPath returns the last successfully configured storage root.
// The second return is false on first run or after a reset.
func (s *Store) ConfiguredPath() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.v.GetString(KeyStorageRoot)
	return path, path != ""
}

// SetConfiguredPath persists path as the storage root. The path must be
// absolute and non-empty; anything else fails with ErrInvalidPath. The write
// is durable before return.
func (s *Store) SetConfiguredPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty storage root", entities.ErrInvalidPath)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: storage root %q is not absolute", entities.ErrInvalidPath, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(KeyStorageRoot, path)
	if err := s.v.WriteConfig(); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// ClearConfiguredPath removes the record. Subsequent ConfiguredPath calls
// report no configured root.
func (s *Store) ClearConfiguredPath() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(KeyStorageRoot, "")
	if err := s.v.WriteConfig(); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// File returns the preference file path, mainly for logging.
func (s *Store) File() string {
	return s.file
}
