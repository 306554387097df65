package voice

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyVoice is returned when no voice name is given.
	ErrEmptyVoice = errors.New("voice name is empty")
	// ErrInvalidVoiceName is returned for names that are not a bare file
	// stem inside the voices directory.
	ErrInvalidVoiceName = errors.New("invalid voice name")
)

// Store caches the most recently used style table. Requesting a different
// voice replaces the cached one. A Store is not safe for concurrent use.
type Store struct {
	dir   string
	name  string
	table *StyleTable
}

// NewStore resolves voice names to <dir>/<name>.bin.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// ValidateName reports whether name can only resolve to a file directly
// inside the voices directory.
func ValidateName(name string) error {
	switch {
	case name == "":
		return ErrEmptyVoice
	case name == "." || name == "..",
		strings.ContainsAny(name, `/\:`),
		strings.ContainsRune(name, 0),
		filepath.Base(name) != name,
		filepath.IsAbs(name),
		strings.HasSuffix(name, ".bin"):
		return fmt.Errorf("%w: %q", ErrInvalidVoiceName, name)
	}

	return nil
}

// Path returns <dir>/<name>.bin, or an error when name is not a bare voice
// name.
func (s *Store) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	return filepath.Join(s.dir, name+".bin"), nil
}

// Get returns the style table for name, loading it on first use.
func (s *Store) Get(name string) (*StyleTable, error) {
	name = strings.TrimSpace(name)

	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}

	if s.table != nil && s.name == name {
		return s.table, nil
	}

	table, err := LoadStyleTable(path)
	if err != nil {
		return nil, fmt.Errorf("voice %q: %w", name, err)
	}

	slog.Debug("loaded voice style table", "voice", name, "path", path)

	s.name = name
	s.table = table

	return table, nil
}

// Current returns the cached voice name, or "" when nothing is loaded.
func (s *Store) Current() string { return s.name }

// Reset drops the cached table.
func (s *Store) Reset() {
	s.name = ""
	s.table = nil
}
