// Package depgraph tracks why each non-primary package is rolling. The
// relation is an edge list persisted as one "dependency:parent" line per
// edge; several edges may share a dependency, one per parent that pulled
// it in. The edge count per dependency is the reference count that keeps
// a shared dependency alive until its last parent is demoted.
package depgraph

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/logging"
	"github.com/domwxyz/aptr/pkg/types"
)

// Edge links a dependency to one parent that requires it.
type Edge struct {
	Dep    string
	Parent string
}

func (e Edge) String() string {
	return e.Dep + ":" + e.Parent
}

// Graph reads and mutates the dependency edge file. Like the registry,
// every mutation is written atomically before the call returns.
type Graph struct {
	fs     types.FS
	path   string
	logger zerolog.Logger
}

// New creates a Graph over the edge file at path.
func New(fs types.FS, path string) *Graph {
	return &Graph{
		fs:     fs,
		path:   path,
		logger: logging.GetLogger("depgraph"),
	}
}

// Path returns the edge file location.
func (g *Graph) Path() string {
	return g.path
}

// Edges returns every edge in file order.
func (g *Graph) Edges() ([]Edge, error) {
	return g.load()
}

// AddEdge records that parent pulled dep in. Adding an edge that already
// exists is a no-op.
func (g *Graph) AddEdge(dep, parent string) error {
	edges, err := g.load()
	if err != nil {
		return err
	}
	for _, e := range edges {
		if e.Dep == dep && e.Parent == parent {
			return nil
		}
	}
	edges = append(edges, Edge{Dep: dep, Parent: parent})
	if err := g.store(edges); err != nil {
		return err
	}
	g.logger.Debug().Str("dependency", dep).Str("parent", parent).Msg("Edge added")
	return nil
}

// RemoveEdge deletes the dep->parent edge. Removing a missing edge is a
// no-op.
func (g *Graph) RemoveEdge(dep, parent string) error {
	edges, err := g.load()
	if err != nil {
		return err
	}
	kept := edges[:0]
	removed := false
	for _, e := range edges {
		if e.Dep == dep && e.Parent == parent {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return nil
	}
	if err := g.store(kept); err != nil {
		return err
	}
	g.logger.Debug().Str("dependency", dep).Str("parent", parent).Msg("Edge removed")
	return nil
}

// ParentsOf returns the parents that currently hold dep rolling.
func (g *Graph) ParentsOf(dep string) ([]string, error) {
	edges, err := g.load()
	if err != nil {
		return nil, err
	}
	var parents []string
	for _, e := range edges {
		if e.Dep == dep {
			parents = append(parents, e.Parent)
		}
	}
	return parents, nil
}

// SoleDependents returns the dependencies whose only parent is the given
// parent, i.e. the packages that must be fully demoted along with it.
// Computed before any edge removal.
func (g *Graph) SoleDependents(parent string) ([]string, error) {
	edges, err := g.load()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	owned := make(map[string]bool)
	order := make([]string, 0)
	for _, e := range edges {
		if counts[e.Dep] == 0 {
			order = append(order, e.Dep)
		}
		counts[e.Dep]++
		if e.Parent == parent {
			owned[e.Dep] = true
		}
	}
	var sole []string
	for _, dep := range order {
		if owned[dep] && counts[dep] == 1 {
			sole = append(sole, dep)
		}
	}
	return sole, nil
}

// DependenciesOf returns the deps recorded for a parent, in file order.
func (g *Graph) DependenciesOf(parent string) ([]string, error) {
	edges, err := g.load()
	if err != nil {
		return nil, err
	}
	var deps []string
	for _, e := range edges {
		if e.Parent == parent {
			deps = append(deps, e.Dep)
		}
	}
	return deps, nil
}

func (g *Graph) load() ([]Edge, error) {
	data, err := g.fs.ReadFile(g.path)
	if err != nil {
		// Missing file means an empty graph; any other failure surfaces.
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess,
			"failed to read dependency file %s", g.path)
	}
	var edges []Edge
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		dep, parent, ok := strings.Cut(line, ":")
		if !ok {
			return nil, errors.Newf(errors.ErrFileAccess,
				"malformed dependency line %q in %s", line, g.path)
		}
		edges = append(edges, Edge{Dep: dep, Parent: parent})
	}
	return edges, nil
}

func (g *Graph) store(edges []Edge) error {
	var b strings.Builder
	for _, e := range edges {
		fmt.Fprintf(&b, "%s:%s\n", e.Dep, e.Parent)
	}
	tmp := g.path + ".tmp"
	if err := g.fs.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrWrite,
			"failed to write dependency file %s", g.path)
	}
	if err := g.fs.Rename(tmp, g.path); err != nil {
		return errors.Wrapf(err, errors.ErrWrite,
			"failed to replace dependency file %s", g.path)
	}
	return nil
}
