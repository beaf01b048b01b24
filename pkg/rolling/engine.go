// Package rolling implements the promotion/demotion engine: the state
// machine that moves a package between stable and rolling, maintains the
// dependency graph's reference counts, and keeps preference pins in sync
// with the registry.
package rolling

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/domwxyz/aptr/pkg/backend"
	"github.com/domwxyz/aptr/pkg/depgraph"
	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/logging"
	"github.com/domwxyz/aptr/pkg/prefs"
	"github.com/domwxyz/aptr/pkg/registry"
	"github.com/domwxyz/aptr/pkg/types"
)

// Engine wires the registry, dependency graph, preference synthesizer
// and package backend together. All collaborators are injected so the
// engine is fully unit-testable against the fake backend and an
// in-memory filesystem.
type Engine struct {
	registry *registry.Store
	graph    *depgraph.Graph
	prefs    *prefs.Synthesizer
	backend  backend.Backend
	channel  string

	// DryRun reports the plan without mutating durable state or
	// invoking backend installs.
	DryRun bool

	// NonInteractive is passed through to backend installs.
	NonInteractive bool

	logger zerolog.Logger
}

// New creates an Engine pinning against the given unstable channel.
func New(reg *registry.Store, graph *depgraph.Graph, syn *prefs.Synthesizer, be backend.Backend, channel string) *Engine {
	return &Engine{
		registry: reg,
		graph:    graph,
		prefs:    syn,
		backend:  be,
		channel:  channel,
		logger:   logging.GetLogger("rolling"),
	}
}

// Roll promotes an already-installed package to rolling. The package
// must be installed and must not already be tracked.
func (e *Engine) Roll(name string) (*types.CommandResult, error) {
	return e.promote("roll", name, true)
}

// Install promotes a package that is not yet installed: it is installed
// straight from the unstable channel and tracked as primary.
func (e *Engine) Install(name string) (*types.CommandResult, error) {
	return e.promote("install", name, false)
}

func (e *Engine) promote(command, name string, requireInstalled bool) (*types.CommandResult, error) {
	// Validation and precondition checks all happen before any
	// mutation; failures here need no rollback.
	if err := types.ValidateName(name); err != nil {
		return nil, err
	}
	tracked, err := e.registry.Contains(name)
	if err != nil {
		return nil, err
	}
	if tracked {
		return nil, errors.Newf(errors.ErrAlreadyTracked, "%s is already rolling", name)
	}
	if requireInstalled {
		installed, err := e.backend.InstalledVersion(name)
		if err != nil {
			return nil, err
		}
		if installed == "" {
			return nil, errors.Newf(errors.ErrNotInstalled,
				"%s is not installed; use install to pull it from %s", name, e.channel)
		}
	}
	if e.backend.IsLocked() {
		return nil, errors.New(errors.ErrBackendLocked,
			"package backend is busy, try again later")
	}
	if err := e.ensureCandidate(name); err != nil {
		return nil, err
	}

	result := &types.CommandResult{
		Command:   command,
		Timestamp: time.Now(),
		DryRun:    e.DryRun,
	}

	if e.DryRun {
		planned, err := e.planDependencies(name)
		if err != nil {
			return nil, err
		}
		result.Packages = append(result.Packages, types.PackageOutcome{
			Name: name, Class: types.ClassPrimary, Success: true, Detail: "would roll",
		})
		result.Packages = append(result.Packages, planned...)
		result.Message = fmt.Sprintf("would roll %s (%d dependencies)", name, len(planned))
		return result, nil
	}

	if err := e.registry.Add(name); err != nil {
		return nil, err
	}
	if err := e.prefs.Create(name, types.PriorityPrimary); err != nil {
		// Pin creation failed before the backend ran; undo the
		// registry entry so state stays coupled.
		_ = e.registry.Remove(name)
		return nil, err
	}

	depOutcomes, err := e.discoverDependencies(name)
	if err != nil {
		// A backend query failed after the package's entry and pin were
		// written. Same rollback as an install failure: the package's
		// own state goes; edges created before the failing query stay,
		// since their pins are already on disk.
		e.logger.Error().Err(err).Str("package", name).Msg("Dependency discovery failed, rolling back")
		_ = e.prefs.Remove(name)
		_ = e.registry.Remove(name)
		return nil, err
	}

	e.logger.Info().Str("package", name).Str("channel", e.channel).
		Int("dependencies", len(depOutcomes)).Msg("Promoting package")

	if err := e.backend.Install(name, e.channel, e.NonInteractive); err != nil {
		// Best-effort rollback: the package's own entry and pin go;
		// dependency edges stay because we cannot know which of them
		// the backend already applied.
		e.logger.Error().Err(err).Str("package", name).Msg("Install failed, rolling back")
		_ = e.prefs.Remove(name)
		_ = e.registry.Remove(name)
		return nil, errors.Wrapf(err, errors.ErrBackend,
			"install of %s from %s failed, tracking rolled back", name, e.channel)
	}

	result.Packages = append(result.Packages, types.PackageOutcome{
		Name: name, Class: types.ClassPrimary, Success: true, Detail: "rolling",
	})
	result.Packages = append(result.Packages, depOutcomes...)
	result.Message = fmt.Sprintf("%s is now rolling against %s (%d dependencies pinned)",
		name, e.channel, len(depOutcomes))
	return result, nil
}

// ensureCandidate verifies the package resolves against the unstable
// channel, refreshing metadata once if it does not at first.
func (e *Engine) ensureCandidate(name string) error {
	ok, err := e.backend.Exists(name, e.channel)
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Debug().Str("package", name).Msg("No candidate yet, refreshing metadata")
		if err := e.backend.RefreshMetadata(); err != nil {
			return err
		}
		ok, err = e.backend.Exists(name, e.channel)
		if err != nil {
			return err
		}
	}
	if !ok {
		return errors.Newf(errors.ErrNoCandidate,
			"%s has no candidate in %s", name, e.channel)
	}
	return nil
}

// discoverDependencies runs the one-hop dependency scan for a freshly
// promoted parent. Each new direct dependency gets an edge, a
// non-primary registry entry and a dependency-priority pin. Transitive
// dependencies are left to the backend's own resolver.
func (e *Engine) discoverDependencies(parent string) ([]types.PackageOutcome, error) {
	candidates, err := e.backend.DirectDependencies(parent)
	if err != nil {
		return nil, err
	}
	var outcomes []types.PackageOutcome
	for _, dep := range candidates {
		pin, err := e.shouldPinDependency(dep)
		if err != nil {
			return nil, err
		}
		if !pin {
			continue
		}
		if err := e.graph.AddEdge(dep, parent); err != nil {
			return nil, err
		}
		if err := e.registry.Add(dep); err != nil {
			return nil, err
		}
		if err := e.prefs.Create(dep, types.PriorityDependency); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, types.PackageOutcome{
			Name: dep, Class: types.ClassDependency, Success: true, Detail: "pinned for " + parent,
		})
	}
	return outcomes, nil
}

// planDependencies is the dry-run twin of discoverDependencies.
func (e *Engine) planDependencies(parent string) ([]types.PackageOutcome, error) {
	candidates, err := e.backend.DirectDependencies(parent)
	if err != nil {
		return nil, err
	}
	var outcomes []types.PackageOutcome
	for _, dep := range candidates {
		pin, err := e.shouldPinDependency(dep)
		if err != nil {
			return nil, err
		}
		if pin {
			outcomes = append(outcomes, types.PackageOutcome{
				Name: dep, Class: types.ClassDependency, Success: true, Detail: "would pin",
			})
		}
	}
	return outcomes, nil
}

// shouldPinDependency applies the one-hop discovery filters: skip names
// the backend reports that fail validation, packages already tracked,
// virtual packages, and dependencies already managed under another
// parent.
func (e *Engine) shouldPinDependency(dep string) (bool, error) {
	if err := types.ValidateName(dep); err != nil {
		e.logger.Warn().Str("dependency", dep).Err(err).
			Msg("Backend reported an invalid dependency name, skipping")
		return false, nil
	}
	tracked, err := e.registry.Contains(dep)
	if err != nil {
		return false, err
	}
	if tracked {
		return false, nil
	}
	virtual, err := e.backend.IsVirtual(dep)
	if err != nil {
		return false, err
	}
	if virtual {
		return false, nil
	}
	parents, err := e.graph.ParentsOf(dep)
	if err != nil {
		return false, err
	}
	if len(parents) > 0 {
		return false, nil
	}
	return true, nil
}

// Unroll demotes a tracked package. Its registry entry and pin go away;
// each dependency it pulled in loses its edge and is fully demoted only
// when that was its last edge. The installed package itself is never
// uninstalled; a later full upgrade may let it fall back to stable.
func (e *Engine) Unroll(name string) (*types.CommandResult, error) {
	if err := types.ValidateName(name); err != nil {
		return nil, err
	}
	tracked, err := e.registry.Contains(name)
	if err != nil {
		return nil, err
	}
	if !tracked {
		return nil, errors.Newf(errors.ErrNotTracked, "%s is not rolling", name)
	}

	result := &types.CommandResult{
		Command:   "unroll",
		Timestamp: time.Now(),
		DryRun:    e.DryRun,
	}

	// Reference counts are computed before any edge removal.
	sole, err := e.graph.SoleDependents(name)
	if err != nil {
		return nil, err
	}
	soleSet := make(map[string]bool, len(sole))
	for _, dep := range sole {
		soleSet[dep] = true
	}
	deps, err := e.graph.DependenciesOf(name)
	if err != nil {
		return nil, err
	}

	if e.DryRun {
		result.Packages = append(result.Packages, types.PackageOutcome{
			Name: name, Class: types.ClassPrimary, Success: true, Detail: "would unroll",
		})
		for _, dep := range sole {
			result.Packages = append(result.Packages, types.PackageOutcome{
				Name: dep, Class: types.ClassDependency, Success: true, Detail: "would unroll",
			})
		}
		result.Message = fmt.Sprintf("would unroll %s (%d dependencies)", name, len(sole))
		return result, nil
	}

	if err := e.registry.Remove(name); err != nil {
		return nil, err
	}
	if err := e.prefs.Remove(name); err != nil {
		return nil, err
	}
	result.Packages = append(result.Packages, types.PackageOutcome{
		Name: name, Success: true, Detail: "no longer rolling",
	})

	for _, dep := range deps {
		if err := e.graph.RemoveEdge(dep, name); err != nil {
			return nil, err
		}
		if !soleSet[dep] {
			// Another parent still needs it; only the edge goes.
			continue
		}
		if err := e.registry.Remove(dep); err != nil && !errors.IsCode(err, errors.ErrNotTracked) {
			return nil, err
		}
		if err := e.prefs.Remove(dep); err != nil {
			return nil, err
		}
		result.Packages = append(result.Packages, types.PackageOutcome{
			Name: dep, Class: types.ClassDependency, Success: true, Detail: "no longer rolling",
		})
	}

	// Drop edges naming this package as a dependency of some other
	// parent, so nothing keeps pointing at an untracked name.
	parents, err := e.graph.ParentsOf(name)
	if err != nil {
		return nil, err
	}
	for _, parent := range parents {
		if err := e.graph.RemoveEdge(name, parent); err != nil {
			return nil, err
		}
	}

	e.logger.Info().Str("package", name).Int("dependenciesReleased", len(sole)).
		Msg("Package demoted")
	result.Message = fmt.Sprintf("%s unrolled (%d dependencies released)", name, len(sole))
	return result, nil
}

// UpgradeAll sweeps every tracked package (primaries and dependencies)
// through a backend install pinned to the unstable channel. Failures
// are collected and reported in aggregate; one package's failure never
// aborts the sweep.
func (e *Engine) UpgradeAll() (*types.CommandResult, error) {
	if e.backend.IsLocked() {
		return nil, errors.New(errors.ErrBackendLocked,
			"package backend is busy, try again later")
	}
	names, err := e.registry.List()
	if err != nil {
		return nil, err
	}

	result := &types.CommandResult{
		Command:   "upgrade",
		Timestamp: time.Now(),
		DryRun:    e.DryRun,
	}

	if e.DryRun {
		for _, name := range names {
			result.Packages = append(result.Packages, types.PackageOutcome{
				Name: name, Success: true, Detail: "would upgrade",
			})
		}
		result.Message = fmt.Sprintf("would upgrade %d packages", len(names))
		return result, nil
	}

	failures := 0
	for _, name := range names {
		if err := e.backend.Install(name, e.channel, e.NonInteractive); err != nil {
			failures++
			e.logger.Error().Err(err).Str("package", name).Msg("Upgrade failed")
			result.Packages = append(result.Packages, types.PackageOutcome{
				Name: name, Success: false, Detail: err.Error(),
			})
			continue
		}
		result.Packages = append(result.Packages, types.PackageOutcome{
			Name: name, Success: true, Detail: "upgraded",
		})
	}

	result.Message = fmt.Sprintf("upgraded %d packages, %d failed", len(names)-failures, failures)
	if failures > 0 {
		return result, errors.Newf(errors.ErrBackend,
			"%d of %d upgrades failed", failures, len(names))
	}
	return result, nil
}
