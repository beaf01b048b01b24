// Package testutil provides the shared test environment: an in-memory
// filesystem, the durable stores pointed at it, a fake backend and an
// engine wired over all of them.
package testutil

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/domwxyz/aptr/pkg/backend"
	"github.com/domwxyz/aptr/pkg/depgraph"
	"github.com/domwxyz/aptr/pkg/filesystem"
	"github.com/domwxyz/aptr/pkg/paths"
	"github.com/domwxyz/aptr/pkg/prefs"
	"github.com/domwxyz/aptr/pkg/registry"
	"github.com/domwxyz/aptr/pkg/rolling"
	"github.com/domwxyz/aptr/pkg/types"
)

// Channel is the unstable channel name used throughout tests.
const Channel = "unstable"

// Env bundles everything a package test needs.
type Env struct {
	FS       types.FS
	Paths    paths.Paths
	Registry *registry.Store
	Graph    *depgraph.Graph
	Prefs    *prefs.Synthesizer
	Backend  *backend.Fake
	Engine   *rolling.Engine
}

// NewEnv builds a fresh in-memory environment.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	p := paths.NewWithDirs("/var/lib/aptr", "/etc/apt/preferences.d", "/etc/apt/sources.list.d")
	require.NoError(t, fs.MkdirAll(p.StateDir(), 0o755))
	require.NoError(t, fs.MkdirAll(p.PreferencesDir(), 0o755))
	require.NoError(t, fs.MkdirAll(p.SourcesDir(), 0o755))

	reg := registry.New(fs, p.RegistryPath())
	graph := depgraph.New(fs, p.DependsPath())
	syn := prefs.New(fs, p, Channel)
	be := backend.NewFake()
	eng := rolling.New(reg, graph, syn, be, Channel)
	eng.NonInteractive = true

	return &Env{
		FS:       fs,
		Paths:    p,
		Registry: reg,
		Graph:    graph,
		Prefs:    syn,
		Backend:  be,
		Engine:   eng,
	}
}

// AddInstalledPackage registers a package as installed on stable with a
// newer candidate on unstable, the usual starting point for a roll.
func (e *Env) AddInstalledPackage(name, installedVersion, candidateVersion string) {
	e.Backend.Installed[name] = installedVersion
	e.Backend.AddCandidate(Channel, name, candidateVersion)
}

// PinExists reports whether the pin file for name is on disk.
func (e *Env) PinExists(t *testing.T, name string) bool {
	t.Helper()
	present, err := e.Prefs.Exists(name)
	require.NoError(t, err)
	return present
}

// Tracked reports whether name is in the registry.
func (e *Env) Tracked(t *testing.T, name string) bool {
	t.Helper()
	tracked, err := e.Registry.Contains(name)
	require.NoError(t, err)
	return tracked
}
