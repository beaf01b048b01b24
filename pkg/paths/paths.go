// Package paths provides centralized path handling for aptr: the state
// directory holding the registry and dependency files, the APT
// preferences and sources directories, and the derived per-package pin
// file paths. All locations can be overridden through environment
// variables so tests and non-root runs never touch /etc or /var.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"

	"github.com/domwxyz/aptr/pkg/types"
)

// Environment variable overrides
const (
	// EnvStateDir overrides the directory holding registry and
	// dependency files.
	EnvStateDir = "APTR_STATE_DIR"

	// EnvPreferencesDir overrides the APT preferences.d directory.
	EnvPreferencesDir = "APTR_PREFERENCES_DIR"

	// EnvSourcesDir overrides the APT sources.list.d directory.
	EnvSourcesDir = "APTR_SOURCES_DIR"
)

// Fixed file names. These define aptr's durable state layout and are not
// user-configurable: the files must stay flat, line-oriented and
// human-editable for compatibility.
const (
	// DefaultStateDir is where registry state lives for root runs.
	DefaultStateDir = "/var/lib/aptr"

	// DefaultPreferencesDir is APT's preference fragment directory.
	DefaultPreferencesDir = "/etc/apt/preferences.d"

	// DefaultSourcesDir is APT's source fragment directory.
	DefaultSourcesDir = "/etc/apt/sources.list.d"

	// DefaultStableSources is the main sources file used to detect the
	// mirror during init.
	DefaultStableSources = "/etc/apt/sources.list"

	// RegistryFile holds one tracked package name per line.
	RegistryFile = "packages.list"

	// DependsFile holds one dependency:parent pair per line.
	DependsFile = "depends.list"

	// LockFile records the pid of the running mutating instance.
	LockFile = "aptr.lock"

	// PinFilePrefix and PinFileSuffix frame per-package pin files.
	PinFilePrefix = "aptr-"
	PinFileSuffix = ".pref"

	// GlobalPinFile is the baseline preferences file written once by
	// init and never regenerated afterwards.
	GlobalPinFile = "aptr.pref"

	// SourcesFile declares the unstable channel's mirror and components.
	SourcesFile = "aptr-unstable.list"
)

// Paths resolves every location aptr reads or writes.
type Paths interface {
	StateDir() string
	RegistryPath() string
	DependsPath() string
	LockPath() string
	PreferencesDir() string
	PinPath(name string) string
	GlobalPinPath() string
	SourcesDir() string
	UnstableSourcesPath() string
	StableSourcesPath() string
}

type paths struct {
	stateDir string
	prefsDir string
	srcsDir  string
	stable   string
}

// New resolves paths from the environment. Root runs get the system
// locations; unprivileged runs fall back to the XDG state directory so
// read-only commands work without sudo.
func New() Paths {
	state := os.Getenv(EnvStateDir)
	if state == "" {
		if os.Geteuid() == 0 {
			state = DefaultStateDir
		} else {
			state = filepath.Join(xdg.StateHome, "aptr")
		}
	}
	prefs := os.Getenv(EnvPreferencesDir)
	if prefs == "" {
		prefs = DefaultPreferencesDir
	}
	srcs := os.Getenv(EnvSourcesDir)
	if srcs == "" {
		srcs = DefaultSourcesDir
	}
	return &paths{stateDir: state, prefsDir: prefs, srcsDir: srcs, stable: DefaultStableSources}
}

// NewWithDirs builds a Paths with explicit directories. Tests use this
// to point everything at an in-memory filesystem.
func NewWithDirs(stateDir, preferencesDir, sourcesDir string) Paths {
	return &paths{
		stateDir: stateDir,
		prefsDir: preferencesDir,
		srcsDir:  sourcesDir,
		stable:   filepath.Join(filepath.Dir(sourcesDir), "sources.list"),
	}
}

func (p *paths) StateDir() string       { return p.stateDir }
func (p *paths) RegistryPath() string   { return filepath.Join(p.stateDir, RegistryFile) }
func (p *paths) DependsPath() string    { return filepath.Join(p.stateDir, DependsFile) }
func (p *paths) LockPath() string       { return filepath.Join(p.stateDir, LockFile) }
func (p *paths) PreferencesDir() string { return p.prefsDir }

// PinPath derives the deterministic pin file path for a package name.
// The name is sanitized first; callers that accept untrusted names must
// still validate before use (see prefs.Synthesizer).
func (p *paths) PinPath(name string) string {
	return filepath.Join(p.prefsDir, PinFilePrefix+types.SanitizeName(name)+PinFileSuffix)
}

func (p *paths) GlobalPinPath() string { return filepath.Join(p.prefsDir, GlobalPinFile) }
func (p *paths) SourcesDir() string    { return p.srcsDir }
func (p *paths) UnstableSourcesPath() string {
	return filepath.Join(p.srcsDir, SourcesFile)
}
func (p *paths) StableSourcesPath() string { return p.stable }

// Contains reports whether child lies under parent after cleaning both.
// The preference synthesizer uses this as its traversal guard.
func Contains(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
