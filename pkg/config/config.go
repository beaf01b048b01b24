// Package config loads aptr's configuration: embedded defaults, an
// optional system config file, then APTR_* environment overrides, each
// layer shadowing the previous one.
package config

import (
	_ "embed"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/domwxyz/aptr/pkg/errors"
)

//go:embed aptr.toml
var defaultConfig []byte

// SystemConfigPath is the optional administrator-provided config file.
const SystemConfigPath = "/etc/aptr/aptr.toml"

// Config holds every tunable aptr reads at startup.
type Config struct {
	Channels ChannelConfig `koanf:"channels"`
	Mirror   MirrorConfig  `koanf:"mirror"`
	Backend  BackendConfig `koanf:"backend"`
}

// ChannelConfig names the archive channels aptr pins against.
type ChannelConfig struct {
	Stable       string `koanf:"stable"`
	Unstable     string `koanf:"unstable"`
	Experimental string `koanf:"experimental"`
}

// MirrorConfig is the fallback mirror used when init cannot detect one
// from the existing stable sources.
type MirrorConfig struct {
	URI        string `koanf:"uri"`
	Components string `koanf:"components"`
}

// BackendConfig tunes the apt backend wrapper.
type BackendConfig struct {
	CacheTTL     int `koanf:"cache_ttl"`
	ProbeTimeout int `koanf:"probe_timeout"`
}

// Load builds the effective configuration. A missing system config file
// is not an error; a malformed one is.
func Load() (*Config, error) {
	return load(SystemConfigPath)
}

func load(systemPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultConfig), toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load built-in defaults")
	}

	if _, err := os.Stat(systemPath); err == nil {
		if err := k.Load(file.Provider(systemPath), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad,
				"failed to load config from %s", systemPath)
		}
	}

	// APTR_CHANNELS_UNSTABLE=sid -> channels.unstable
	if err := k.Load(env.Provider("APTR_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "APTR_")), "_", ".")
	}), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment overrides")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to unmarshal configuration")
	}
	return &cfg, nil
}
