package rolling

import (
	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/types"
)

// Status returns the display state of one tracked package. Read-only:
// callers do not need the process lock.
func (e *Engine) Status(name string) (*types.PackageStatus, error) {
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
	return e.status(name)
}

// ListStatus returns display state for every tracked package, in
// registry order.
func (e *Engine) ListStatus() ([]types.PackageStatus, error) {
	names, err := e.registry.List()
	if err != nil {
		return nil, err
	}
	statuses := make([]types.PackageStatus, 0, len(names))
	for _, name := range names {
		st, err := e.status(name)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *st)
	}
	return statuses, nil
}

func (e *Engine) status(name string) (*types.PackageStatus, error) {
	parents, err := e.graph.ParentsOf(name)
	if err != nil {
		return nil, err
	}
	deps, err := e.graph.DependenciesOf(name)
	if err != nil {
		return nil, err
	}
	class := types.ClassPrimary
	if len(parents) > 0 {
		class = types.ClassDependency
	}
	installed, err := e.backend.InstalledVersion(name)
	if err != nil {
		return nil, err
	}
	candidate, err := e.backend.CandidateVersion(name, e.channel)
	if err != nil {
		return nil, err
	}
	pinPath, err := e.prefs.Path(name)
	if err != nil {
		return nil, err
	}
	pinPresent, err := e.prefs.Exists(name)
	if err != nil {
		return nil, err
	}
	return &types.PackageStatus{
		Name:             name,
		Class:            class,
		Parents:          parents,
		Dependencies:     deps,
		InstalledVersion: installed,
		CandidateVersion: candidate,
		PinPath:          pinPath,
		PinPresent:       pinPresent,
	}, nil
}
