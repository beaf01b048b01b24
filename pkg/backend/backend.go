// Package backend defines the narrow package-backend contract the
// engine and checker call into, plus two implementations: the real APT
// wrapper and an in-memory fake for tests. All calls are synchronous and
// blocking; the engine never retries a failed install on its own.
package backend

// Backend is the external collaborator that answers package queries and
// performs installs. A channel argument of "" means "any channel".
type Backend interface {
	// Exists reports whether name resolves against the given channel.
	Exists(name, channel string) (bool, error)

	// IsVirtual reports whether name is satisfied only through a
	// provided-by relation rather than being concretely installable.
	IsVirtual(name string) (bool, error)

	// DirectDependencies returns name's direct (one-hop) dependency
	// names. Transitive closure is deliberately left to the backend's
	// own resolver.
	DirectDependencies(name string) ([]string, error)

	// InstalledVersion returns the installed version, or "" when the
	// package is not installed.
	InstalledVersion(name string) (string, error)

	// CandidateVersion returns the candidate version in the given
	// channel, or "" when none exists.
	CandidateVersion(name, channel string) (string, error)

	// Install installs or upgrades name pinned to the given channel.
	Install(name, channel string, nonInteractive bool) error

	// RefreshMetadata updates the package metadata caches.
	RefreshMetadata() error

	// IsLocked reports whether the backend's own database locks are
	// currently held by another process.
	IsLocked() bool

	// Probe performs a bounded-time liveness check of the given
	// channel's metadata.
	Probe(channel string) error
}
