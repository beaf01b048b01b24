// Package prefs synthesizes APT preference pins for rolling packages.
// Pin files are a derived projection of the registry and dependency
// graph: they can be deleted and regenerated at any time, except that
// the priority class (primary vs dependency) is supplied by the caller
// because it is fixed at first registration.
package prefs

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/logging"
	"github.com/domwxyz/aptr/pkg/paths"
	"github.com/domwxyz/aptr/pkg/types"
)

// Synthesizer creates and removes per-package pin files in the APT
// preferences directory.
type Synthesizer struct {
	fs      types.FS
	paths   paths.Paths
	channel string
	logger  zerolog.Logger
}

// New creates a Synthesizer pinning against the given channel
// (normally the configured unstable channel).
func New(fs types.FS, p paths.Paths, channel string) *Synthesizer {
	return &Synthesizer{
		fs:      fs,
		paths:   p,
		channel: channel,
		logger:  logging.GetLogger("prefs"),
	}
}

// Path returns the pin file path for name after re-validating it. The
// name is validated even though promotion already did: the identifier
// becomes part of a file path, so the synthesizer never trusts its
// caller.
func (s *Synthesizer) Path(name string) (string, error) {
	if err := types.ValidateName(name); err != nil {
		return "", err
	}
	if types.SanitizeName(name) == "" {
		return "", errors.Newf(errors.ErrInvalidName,
			"package name %q sanitizes to nothing", name)
	}
	path := s.paths.PinPath(name)
	if !paths.Contains(s.paths.PreferencesDir(), path) {
		return "", errors.Newf(errors.ErrUnsafePath,
			"derived pin path %s escapes preferences directory", path)
	}
	return path, nil
}

// Create writes the pin file for name at the given priority. Two
// stanzas are written: one for the exact name and one for a `name*`
// wildcard so source-package splits (-dev, -dbg and friends) inherit
// the pin. Re-creating an existing pin overwrites it.
func (s *Synthesizer) Create(name string, priority int) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.paths.PreferencesDir(), 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrWrite,
			"failed to create preferences directory")
	}
	content := Render(name, s.channel, priority)
	if err := s.fs.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrWrite,
			"failed to write pin file %s", path)
	}
	s.logger.Debug().Str("package", name).Int("priority", priority).
		Str("path", path).Msg("Pin created")
	return nil
}

// Remove deletes the pin file for name. Removing a pin that does not
// exist is a no-op, not an error.
func (s *Synthesizer) Remove(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if _, err := s.fs.Stat(path); err != nil {
		return nil
	}
	if err := s.fs.Remove(path); err != nil {
		return errors.Wrapf(err, errors.ErrWrite,
			"failed to remove pin file %s", path)
	}
	s.logger.Debug().Str("package", name).Str("path", path).Msg("Pin removed")
	return nil
}

// Exists reports whether the pin file for name is present.
func (s *Synthesizer) Exists(name string) (bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return false, err
	}
	_, statErr := s.fs.Stat(path)
	return statErr == nil, nil
}

// ListPinPaths returns every aptr-owned per-package pin file in the
// preferences directory, excluding the global baseline file.
func (s *Synthesizer) ListPinPaths() ([]string, error) {
	entries, err := s.fs.ReadDir(s.paths.PreferencesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess,
			"failed to read preferences directory")
	}
	var found []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == paths.GlobalPinFile {
			continue
		}
		if strings.HasPrefix(name, paths.PinFilePrefix) && strings.HasSuffix(name, paths.PinFileSuffix) {
			found = append(found, name)
		}
	}
	return found, nil
}

// PackageFromFileName recovers the sanitized package identifier from a
// pin file name.
func PackageFromFileName(fileName string) string {
	name := strings.TrimPrefix(fileName, paths.PinFilePrefix)
	return strings.TrimSuffix(name, paths.PinFileSuffix)
}

// Render produces the pin file content: an exact stanza and a wildcard
// stanza at the same priority.
func Render(name, channel string, priority int) string {
	var b strings.Builder
	writeStanza(&b, name, channel, priority)
	b.WriteByte('\n')
	writeStanza(&b, name+"*", channel, priority)
	return b.String()
}

func writeStanza(b *strings.Builder, pattern, channel string, priority int) {
	fmt.Fprintf(b, "Package: %s\n", pattern)
	fmt.Fprintf(b, "Pin: release a=%s\n", channel)
	fmt.Fprintf(b, "Pin-Priority: %d\n", priority)
}

// Stanza is one parsed preference block.
type Stanza struct {
	Package  string
	Pin      string
	Priority string
}

// Parse splits pin file content into stanzas and verifies each carries
// the three required fields. Used by the consistency checker's
// well-formedness pass.
func Parse(data []byte) ([]Stanza, error) {
	var stanzas []Stanza
	for _, block := range strings.Split(strings.TrimSpace(string(data)), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var st Stanza
		for _, line := range strings.Split(block, "\n") {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, fmt.Errorf("malformed line %q", line)
			}
			value = strings.TrimSpace(value)
			switch key {
			case "Package":
				st.Package = value
			case "Pin":
				st.Pin = value
			case "Pin-Priority":
				st.Priority = value
			}
		}
		if st.Package == "" || st.Pin == "" || st.Priority == "" {
			return nil, fmt.Errorf("stanza missing required field (Package/Pin/Pin-Priority)")
		}
		stanzas = append(stanzas, st)
	}
	if len(stanzas) == 0 {
		return nil, fmt.Errorf("no stanzas found")
	}
	return stanzas, nil
}
