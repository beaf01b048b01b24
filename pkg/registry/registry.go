// Package registry implements the durable rolling-package registry: a
// flat file with one tracked package name per line, insertion order
// preserved. The file is the source of truth for which packages are
// rolling; preference pins are derived from it.
package registry

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/logging"
	"github.com/domwxyz/aptr/pkg/types"
)

// Store reads and mutates the registry file. Every mutation is written
// durably (temp file + rename) before the call returns, so a subsequent
// read never observes a partial write.
type Store struct {
	fs     types.FS
	path   string
	logger zerolog.Logger
}

// New creates a Store over the registry file at path.
func New(fs types.FS, path string) *Store {
	return &Store{
		fs:     fs,
		path:   path,
		logger: logging.GetLogger("registry"),
	}
}

// Path returns the registry file location.
func (s *Store) Path() string {
	return s.path
}

// Contains reports whether name is tracked.
func (s *Store) Contains(name string) (bool, error) {
	names, err := s.load()
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Add appends name to the registry. Fails with ALREADY_TRACKED when the
// name is already present: the registry is a set, not a multiset.
func (s *Store) Add(name string) error {
	names, err := s.load()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == name {
			return errors.Newf(errors.ErrAlreadyTracked, "%s is already rolling", name)
		}
	}
	names = append(names, name)
	if err := s.store(names); err != nil {
		return err
	}
	s.logger.Debug().Str("package", name).Msg("Added to registry")
	return nil
}

// Remove deletes name's line from the registry. Fails with NOT_TRACKED
// when the name is absent.
func (s *Store) Remove(name string) error {
	names, err := s.load()
	if err != nil {
		return err
	}
	kept := names[:0]
	found := false
	for _, n := range names {
		if n == name {
			found = true
			continue
		}
		kept = append(kept, n)
	}
	if !found {
		return errors.Newf(errors.ErrNotTracked, "%s is not rolling", name)
	}
	if err := s.store(kept); err != nil {
		return err
	}
	s.logger.Debug().Str("package", name).Msg("Removed from registry")
	return nil
}

// List returns all tracked names in insertion order.
func (s *Store) List() ([]string, error) {
	return s.load()
}

func (s *Store) load() ([]string, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		// Only a genuinely missing file means an empty registry; any
		// other read failure (permissions, a directory in the way) must
		// surface, or a later write would clobber the real state.
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess,
			"failed to read registry %s", s.path)
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names, nil
}

func (s *Store) store(names []string) error {
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	tmp := s.path + ".tmp"
	if err := s.fs.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrWrite,
			"failed to write registry %s", s.path)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, errors.ErrWrite,
			"failed to replace registry %s", s.path)
	}
	return nil
}
