// Package lockfile provides the process-wide mutating lock. Exactly one
// live aptr instance may mutate registry, graph or preference state; the
// lock records the holder's pid so a lock left behind by a dead process
// can be detected and reclaimed.
package lockfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/logging"
)

// Lock is a held process lock. Callers must Release on every exit path;
// the usual pattern is an immediate deferred Release after Acquire.
type Lock struct {
	path   string
	logger zerolog.Logger
}

// Acquire takes the lock at path or fails with LOCK_HELD if another
// live process holds it. A lock whose recorded pid is no longer alive is
// reclaimed automatically.
func Acquire(path string) (*Lock, error) {
	logger := logging.GetLogger("lockfile")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrWrite,
			"failed to create lock directory for %s", path)
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if werr := writePid(f); werr != nil {
				_ = os.Remove(path)
				return nil, errors.Wrapf(werr, errors.ErrWrite,
					"failed to record pid in %s", path)
			}
			logger.Debug().Str("path", path).Int("pid", os.Getpid()).Msg("Lock acquired")
			return &Lock{path: path, logger: logger}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrapf(err, errors.ErrWrite,
				"failed to create lock file %s", path)
		}

		holder, readErr := readHolder(path)
		if readErr == nil && processAlive(holder) {
			return nil, errors.Newf(errors.ErrLockHeld,
				"another aptr instance (pid %d) holds the lock", holder).
				WithDetail("path", path)
		}
		// Holder is dead or the file is garbage: reclaim and retry.
		logger.Warn().Str("path", path).Int("stalePid", holder).
			Msg("Reclaiming stale lock")
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, errors.Wrapf(rmErr, errors.ErrWrite,
				"failed to reclaim stale lock %s", path)
		}
	}
	return nil, errors.Newf(errors.ErrLockHeld,
		"could not acquire lock %s", path)
}

// Release drops the lock. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, errors.ErrWrite,
			"failed to release lock %s", l.path)
	}
	l.logger.Debug().Str("path", l.path).Msg("Lock released")
	return nil
}

// writePid records the holder pid and closes the file, returning the
// first failure of either step.
func writePid(f *os.File) error {
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

func readHolder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, errors.Newf(errors.ErrInvalidInput,
			"lock file %s does not contain a pid", path)
	}
	return pid, nil
}

// processAlive probes the pid with signal 0. EPERM still means the
// process exists, just owned by someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
