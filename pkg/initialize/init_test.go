package initialize_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domwxyz/aptr/pkg/config"
	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/filesystem"
	"github.com/domwxyz/aptr/pkg/initialize"
	"github.com/domwxyz/aptr/pkg/paths"
	"github.com/domwxyz/aptr/pkg/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Channels: config.ChannelConfig{
			Stable:       "stable",
			Unstable:     "unstable",
			Experimental: "experimental",
		},
		Mirror: config.MirrorConfig{
			URI:        "http://deb.debian.org/debian",
			Components: "main contrib",
		},
	}
}

func newInitializer(t *testing.T) (*initialize.Initializer, types.FS, paths.Paths) {
	t.Helper()
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	p := paths.NewWithDirs("/var/lib/aptr", "/etc/apt/preferences.d", "/etc/apt/sources.list.d")
	return initialize.New(fs, p, testConfig()), fs, p
}

func TestRun_CreatesEverything(t *testing.T) {
	ini, fs, p := newInitializer(t)

	result, err := ini.Run(initialize.Options{})
	require.NoError(t, err)
	assert.Len(t, result.Created, 4)
	assert.Empty(t, result.Skipped)

	// State files exist and are empty.
	for _, path := range []string{p.RegistryPath(), p.DependsPath()} {
		data, err := fs.ReadFile(path)
		require.NoError(t, err)
		assert.Empty(t, data)
	}

	// Baselines: stable wins, unstable and experimental stay below the
	// installed-version threshold.
	data, err := fs.ReadFile(p.GlobalPinPath())
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Pin: release a=stable\nPin-Priority: 990")
	assert.Contains(t, content, "Pin: release a=stable-updates\nPin-Priority: 900")
	assert.Contains(t, content, "Pin: release a=unstable\nPin-Priority: 200")
	assert.Contains(t, content, "Pin: release a=experimental\nPin-Priority: 50")

	data, err = fs.ReadFile(p.UnstableSourcesPath())
	require.NoError(t, err)
	assert.Equal(t, "deb http://deb.debian.org/debian unstable main contrib\n", string(data))
}

func TestRun_DetectsMirrorFromStableSources(t *testing.T) {
	ini, fs, p := newInitializer(t)
	stable := "# main sources\n" +
		"deb [signed-by=/usr/share/keyrings/debian.gpg] https://mirror.example.org/debian stable main non-free\n"
	require.NoError(t, fs.MkdirAll("/etc/apt", 0o755))
	require.NoError(t, fs.WriteFile(p.StableSourcesPath(), []byte(stable), 0o644))

	_, err := ini.Run(initialize.Options{})
	require.NoError(t, err)

	data, err := fs.ReadFile(p.UnstableSourcesPath())
	require.NoError(t, err)
	assert.Equal(t, "deb https://mirror.example.org/debian unstable main non-free\n", string(data))
}

func TestRun_RefusesToClobber(t *testing.T) {
	ini, _, _ := newInitializer(t)
	_, err := ini.Run(initialize.Options{})
	require.NoError(t, err)

	_, err = ini.Run(initialize.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAlreadyExists))
}

func TestRun_ForceOverwrites(t *testing.T) {
	ini, fs, p := newInitializer(t)
	_, err := ini.Run(initialize.Options{})
	require.NoError(t, err)

	// Simulate local edits, then force re-init.
	require.NoError(t, fs.WriteFile(p.GlobalPinPath(), []byte("mangled"), 0o644))

	result, err := ini.Run(initialize.Options{Force: true})
	require.NoError(t, err)

	data, err := fs.ReadFile(p.GlobalPinPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Pin-Priority: 990")
	// State files already existed and were left alone.
	assert.ElementsMatch(t, []string{p.RegistryPath(), p.DependsPath()}, result.Skipped)
}

func TestRun_PreservesExistingState(t *testing.T) {
	ini, fs, p := newInitializer(t)
	require.NoError(t, fs.MkdirAll(p.StateDir(), 0o755))
	require.NoError(t, fs.WriteFile(p.RegistryPath(), []byte("vim\n"), 0o644))

	_, err := ini.Run(initialize.Options{})
	require.NoError(t, err)

	data, err := fs.ReadFile(p.RegistryPath())
	require.NoError(t, err)
	assert.Equal(t, "vim\n", string(data))
}
