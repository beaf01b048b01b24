package backend

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenk/backoff"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/logging"
)

// Runner executes an external command and returns its stdout. It exists
// so tests can feed canned apt-cache/dpkg output through the parsers.
type Runner func(name string, args ...string) (string, error)

func execRunner(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return string(out), fmt.Errorf("%s %s: %w: %s",
				name, strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return string(out), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return string(out), nil
}

// dpkg lock files probed by IsLocked.
var defaultLockPaths = []string{
	"/var/lib/dpkg/lock-frontend",
	"/var/lib/dpkg/lock",
	"/var/lib/apt/lists/lock",
}

// Apt implements Backend by shelling out to apt-get, apt-cache and
// dpkg-query. Read-only queries are memoized for a short TTL so a bulk
// sweep or a checker pass does not re-fork apt-cache for the same name.
type Apt struct {
	run          Runner
	cache        *gocache.Cache
	lockPaths    []string
	probeTimeout time.Duration
	logger       zerolog.Logger
}

// AptOption customizes the Apt backend.
type AptOption func(*Apt)

// WithRunner substitutes the command runner. Tests use this.
func WithRunner(r Runner) AptOption {
	return func(a *Apt) { a.run = r }
}

// WithLockPaths substitutes the dpkg lock files probed by IsLocked.
func WithLockPaths(paths []string) AptOption {
	return func(a *Apt) { a.lockPaths = paths }
}

// NewApt creates the APT backend. cacheTTL bounds query memoization;
// probeTimeout caps RefreshMetadata retries and the Probe pass.
func NewApt(cacheTTL, probeTimeout time.Duration, opts ...AptOption) *Apt {
	a := &Apt{
		run:          execRunner,
		cache:        gocache.New(cacheTTL, 2*cacheTTL),
		lockPaths:    defaultLockPaths,
		probeTimeout: probeTimeout,
		logger:       logging.GetLogger("backend.apt"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Exists reports whether name has a version in the given channel
// according to apt-cache policy.
func (a *Apt) Exists(name, channel string) (bool, error) {
	key := "exists:" + name + ":" + channel
	if v, ok := a.cache.Get(key); ok {
		return v.(bool), nil
	}
	out, err := a.run("apt-cache", "policy", "--", name)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrBackend, "policy query failed for %s", name)
	}
	found := policyHasChannel(out, channel)
	a.cache.SetDefault(key, found)
	return found, nil
}

// policyHasChannel scans apt-cache policy output. With a channel it
// looks for a version-table row from that archive; without one it only
// requires a concrete candidate.
func policyHasChannel(out, channel string) bool {
	if !strings.Contains(out, "Candidate:") {
		return false
	}
	if channel == "" {
		for _, line := range strings.Split(out, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Candidate:") {
				cand := strings.TrimSpace(strings.TrimPrefix(line, "Candidate:"))
				return cand != "" && cand != "(none)"
			}
		}
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, " "+channel+"/") {
			return true
		}
	}
	return false
}

// IsVirtual reports whether name has no concrete versions but is
// provided by other packages.
func (a *Apt) IsVirtual(name string) (bool, error) {
	key := "virtual:" + name
	if v, ok := a.cache.Get(key); ok {
		return v.(bool), nil
	}
	out, err := a.run("apt-cache", "showpkg", "--", name)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrBackend, "showpkg query failed for %s", name)
	}
	virtual := parseShowpkgVirtual(out)
	a.cache.SetDefault(key, virtual)
	return virtual, nil
}

// parseShowpkgVirtual reads apt-cache showpkg output: a package with an
// empty Versions section but at least one reverse provide is virtual.
func parseShowpkgVirtual(out string) bool {
	lines := strings.Split(out, "\n")
	hasVersion := false
	hasProvider := false
	section := ""
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Versions:"):
			section = "versions"
			continue
		case strings.HasPrefix(trimmed, "Reverse Depends:"):
			section = "rdepends"
			continue
		case strings.HasPrefix(trimmed, "Dependencies:"):
			section = "depends"
			continue
		case strings.HasPrefix(trimmed, "Provides:"):
			section = "provides"
			continue
		case strings.HasPrefix(trimmed, "Reverse Provides:"):
			section = "rprovides"
			continue
		}
		if trimmed == "" {
			continue
		}
		switch section {
		case "versions":
			hasVersion = true
		case "rprovides":
			hasProvider = true
		}
	}
	return !hasVersion && hasProvider
}

// DirectDependencies returns name's direct Depends entries. Recommends,
// suggests and the other soft relations are excluded.
func (a *Apt) DirectDependencies(name string) ([]string, error) {
	out, err := a.run("apt-cache", "depends",
		"--no-recommends", "--no-suggests", "--no-conflicts",
		"--no-breaks", "--no-replaces", "--no-enhances", "--", name)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrBackend, "depends query failed for %s", name)
	}
	return parseDepends(out), nil
}

// parseDepends extracts dependency names from apt-cache depends output.
// Alternative branches ("|Depends:") are skipped: only the first branch
// of an alternation is a real pin candidate, and the <angle-bracket>
// virtual markers are stripped so the engine's own virtual check
// decides.
func parseDepends(out string) []string {
	var deps []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") {
			continue
		}
		dep, ok := strings.CutPrefix(trimmed, "Depends:")
		if !ok {
			dep, ok = strings.CutPrefix(trimmed, "PreDepends:")
			if !ok {
				continue
			}
		}
		dep = strings.TrimSpace(dep)
		dep = strings.TrimPrefix(dep, "<")
		dep = strings.TrimSuffix(dep, ">")
		if dep == "" || seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}
	return deps
}

// InstalledVersion returns the installed version via dpkg-query, or ""
// when the package is not installed.
func (a *Apt) InstalledVersion(name string) (string, error) {
	out, err := a.run("dpkg-query", "-W", "-f", "${Version}", "--", name)
	if err != nil {
		// dpkg-query exits non-zero for unknown packages; that is the
		// only failure that means "not installed". Anything else (a
		// broken dpkg database, say) must surface, or the checker would
		// report phantom not-installed findings.
		if strings.Contains(err.Error(), "no packages found") {
			return "", nil
		}
		return "", errors.Wrapf(err, errors.ErrBackend, "dpkg query failed for %s", name)
	}
	return strings.TrimSpace(out), nil
}

// CandidateVersion returns the newest version name has in the given
// channel, from apt-cache madison.
func (a *Apt) CandidateVersion(name, channel string) (string, error) {
	key := "candidate:" + name + ":" + channel
	if v, ok := a.cache.Get(key); ok {
		return v.(string), nil
	}
	out, err := a.run("apt-cache", "madison", "--", name)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrBackend, "madison query failed for %s", name)
	}
	version := parseMadison(out, channel)
	a.cache.SetDefault(key, version)
	return version, nil
}

// parseMadison picks the first madison row whose repository column
// matches the channel (any row when channel is empty).
func parseMadison(out, channel string) string {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "|")
		if len(fields) < 3 {
			continue
		}
		version := strings.TrimSpace(fields[1])
		repo := strings.TrimSpace(fields[2])
		if channel == "" || strings.Contains(repo, channel) {
			return version
		}
	}
	return ""
}

// Install installs or upgrades name pinned to the given channel.
func (a *Apt) Install(name, channel string, nonInteractive bool) error {
	args := []string{"install", "-q", "--target-release", channel}
	if nonInteractive {
		args = append(args, "-y")
	}
	args = append(args, "--", name)
	a.logger.Info().Str("package", name).Str("channel", channel).Msg("Invoking apt-get install")
	if _, err := a.run("apt-get", args...); err != nil {
		return errors.Wrapf(err, errors.ErrBackend, "install failed for %s", name)
	}
	// Installed state changed under the memoized queries.
	a.cache.Flush()
	return nil
}

// RefreshMetadata runs apt-get update, retrying transient failures with
// exponential backoff up to the probe timeout.
func (a *Apt) RefreshMetadata() error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxElapsedTime = a.probeTimeout
	err := backoff.Retry(func() error {
		_, runErr := a.run("apt-get", "update", "-q")
		return runErr
	}, bo)
	if err != nil {
		return errors.Wrap(err, errors.ErrBackend, "metadata refresh failed")
	}
	a.cache.Flush()
	return nil
}

// IsLocked reports whether another process holds the dpkg/apt database
// locks. Each lock file is probed with a non-blocking flock; files we
// cannot open (missing, or no privilege) are treated as free since a
// held lock cannot be confirmed.
func (a *Apt) IsLocked() bool {
	for _, path := range a.lockPaths {
		fd, err := unix.Open(path, unix.O_RDWR, 0)
		if err != nil {
			continue
		}
		err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			_ = unix.Flock(fd, unix.LOCK_UN)
			_ = unix.Close(fd)
			continue
		}
		_ = unix.Close(fd)
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			a.logger.Debug().Str("path", path).Msg("Backend lock held")
			return true
		}
	}
	return false
}

// Probe checks that the channel's metadata is present locally. The
// whole probe is bounded by the configured timeout; a failure is
// reported to the caller, never retried past the deadline.
func (a *Apt) Probe(channel string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = a.probeTimeout
	err := backoff.Retry(func() error {
		out, runErr := a.run("apt-cache", "policy")
		if runErr != nil {
			return runErr
		}
		if !strings.Contains(out, "a="+channel) {
			return backoff.Permanent(fmt.Errorf("channel %s not present in policy sources", channel))
		}
		return nil
	}, bo)
	if err != nil {
		return errors.Wrapf(err, errors.ErrBackend, "channel %s is not reachable", channel)
	}
	return nil
}
