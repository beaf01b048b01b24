// Package initialize performs aptr's one-time setup: the state
// directory, the global preference baselines and the unstable channel's
// source declaration. The engine never regenerates these afterwards.
package initialize

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/domwxyz/aptr/pkg/config"
	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/logging"
	"github.com/domwxyz/aptr/pkg/paths"
	"github.com/domwxyz/aptr/pkg/types"
)

// Options controls initialization.
type Options struct {
	// Force overwrites an existing global preferences file or sources
	// entry. Without it, an existing file fails with ALREADY_EXISTS.
	Force bool
}

// Result lists what init created.
type Result struct {
	Created []string
	Skipped []string
}

// Initializer creates aptr's durable files.
type Initializer struct {
	fs     types.FS
	paths  paths.Paths
	cfg    *config.Config
	logger zerolog.Logger
}

// New creates an Initializer.
func New(fs types.FS, p paths.Paths, cfg *config.Config) *Initializer {
	return &Initializer{
		fs:     fs,
		paths:  p,
		cfg:    cfg,
		logger: logging.GetLogger("init"),
	}
}

// Run performs initialization. State files are created empty when
// missing; the global preferences file and the unstable source entry
// are written once and refuse to clobber without Force.
func (i *Initializer) Run(opts Options) (*Result, error) {
	result := &Result{}

	if err := i.fs.MkdirAll(i.paths.StateDir(), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrWrite, "failed to create state directory")
	}
	for _, path := range []string{i.paths.RegistryPath(), i.paths.DependsPath()} {
		if _, err := i.fs.Stat(path); err == nil {
			result.Skipped = append(result.Skipped, path)
			continue
		}
		if err := i.fs.WriteFile(path, nil, 0o644); err != nil {
			return nil, errors.Wrapf(err, errors.ErrWrite, "failed to create %s", path)
		}
		result.Created = append(result.Created, path)
	}

	if err := i.writeOnce(i.paths.GlobalPinPath(), i.globalPreferences(), opts.Force, result); err != nil {
		return nil, err
	}
	if err := i.writeOnce(i.paths.UnstableSourcesPath(), i.unstableSource(), opts.Force, result); err != nil {
		return nil, err
	}

	i.logger.Info().Strs("created", result.Created).Msg("Initialization complete")
	return result, nil
}

func (i *Initializer) writeOnce(path, content string, force bool, result *Result) error {
	if _, err := i.fs.Stat(path); err == nil {
		if !force {
			return errors.Newf(errors.ErrAlreadyExists,
				"%s already exists (use --force to overwrite)", path)
		}
	}
	if err := i.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrWrite, "failed to create directory for %s", path)
	}
	if err := i.fs.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrWrite, "failed to write %s", path)
	}
	result.Created = append(result.Created, path)
	return nil
}

// globalPreferences renders the baseline channel priorities: stable at
// 990/900 so the system stays pinned to it, unstable at 200 and
// experimental at 50 so neither wins an election without an explicit
// aptr pin.
func (i *Initializer) globalPreferences() string {
	var b strings.Builder
	stanza := func(channel string, priority int) {
		fmt.Fprintf(&b, "Package: *\nPin: release a=%s\nPin-Priority: %d\n\n", channel, priority)
	}
	stanza(i.cfg.Channels.Stable, types.PriorityStableRelease)
	stanza(i.cfg.Channels.Stable+"-updates", types.PriorityStableUpdates)
	stanza(i.cfg.Channels.Unstable, types.PriorityUnstable)
	stanza(i.cfg.Channels.Experimental, types.PriorityExperimental)
	return strings.TrimSuffix(b.String(), "\n")
}

// unstableSource declares the unstable channel, reusing the mirror and
// components of the first stable deb line when one can be found, and
// falling back to the configured mirror otherwise.
func (i *Initializer) unstableSource() string {
	uri := i.cfg.Mirror.URI
	components := i.cfg.Mirror.Components
	if detectedURI, detectedComponents, ok := i.detectMirror(); ok {
		uri = detectedURI
		components = detectedComponents
		i.logger.Debug().Str("uri", uri).Msg("Mirror detected from stable sources")
	}
	return fmt.Sprintf("deb %s %s %s\n", uri, i.cfg.Channels.Unstable, components)
}

func (i *Initializer) detectMirror() (uri, components string, ok bool) {
	data, err := i.fs.ReadFile(i.paths.StableSourcesPath())
	if err != nil {
		return "", "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[0] != "deb" {
			continue
		}
		// deb [options] uri suite components...
		rest := fields[1:]
		if strings.HasPrefix(rest[0], "[") {
			for len(rest) > 0 && !strings.HasSuffix(rest[0], "]") {
				rest = rest[1:]
			}
			if len(rest) > 0 {
				rest = rest[1:]
			}
		}
		if len(rest) < 3 {
			continue
		}
		return rest[0], strings.Join(rest[2:], " "), true
	}
	return "", "", false
}
