package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domwxyz/aptr/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "stable", cfg.Channels.Stable)
	assert.Equal(t, "unstable", cfg.Channels.Unstable)
	assert.Equal(t, "experimental", cfg.Channels.Experimental)
	assert.Equal(t, "http://deb.debian.org/debian", cfg.Mirror.URI)
	assert.Equal(t, 30, cfg.Backend.CacheTTL)
	assert.Equal(t, 15, cfg.Backend.ProbeTimeout)
}

func TestLoad_SystemFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aptr.toml")
	content := `[channels]
unstable = "sid"

[backend]
cache_ttl = 60
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := load(path)
	require.NoError(t, err)

	assert.Equal(t, "sid", cfg.Channels.Unstable)
	assert.Equal(t, 60, cfg.Backend.CacheTTL)
	// Untouched keys keep their defaults.
	assert.Equal(t, "stable", cfg.Channels.Stable)
	assert.Equal(t, 15, cfg.Backend.ProbeTimeout)
}

func TestLoad_EnvOverridesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aptr.toml")
	require.NoError(t, os.WriteFile(path, []byte("[channels]\nunstable = \"sid\"\n"), 0o644))
	t.Setenv("APTR_CHANNELS_UNSTABLE", "trixie")

	cfg, err := load(path)
	require.NoError(t, err)
	assert.Equal(t, "trixie", cfg.Channels.Unstable)
}

func TestLoad_MalformedSystemFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aptr.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid toml"), 0o644))

	_, err := load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfigLoad))
}
