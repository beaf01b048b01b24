// Package doctor implements the consistency checker: a read-only
// reconciliation pass across the registry, the dependency graph, the
// preference pins and the backend's actual install state. Repairs run
// only when explicitly authorized, and even then only the repairs that
// are safe: installing software is never one of them.
package doctor

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/domwxyz/aptr/pkg/backend"
	"github.com/domwxyz/aptr/pkg/depgraph"
	"github.com/domwxyz/aptr/pkg/errors"
	"github.com/domwxyz/aptr/pkg/logging"
	"github.com/domwxyz/aptr/pkg/paths"
	"github.com/domwxyz/aptr/pkg/prefs"
	"github.com/domwxyz/aptr/pkg/registry"
	"github.com/domwxyz/aptr/pkg/types"
)

// Pass names, stable for reporting and tests.
const (
	PassEdgeOrphans  = "edge-orphans"
	PassInstallState = "install-state"
	PassPinPresence  = "pin-presence"
	PassPinOrphans   = "pin-orphans"
	PassPinFormat    = "pin-format"
	PassReachability = "reachability"
)

// Finding is one detected inconsistency.
type Finding struct {
	Pass     string
	Package  string
	Detail   string
	Repaired bool
}

// Report aggregates every finding across all passes. The system is
// clean only when no pass found anything.
type Report struct {
	Findings []Finding
}

// Issues returns the total issue count.
func (r *Report) Issues() int {
	return len(r.Findings)
}

// Clean reports whether every pass came back empty.
func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

func (r *Report) add(pass, pkg, detail string, repaired bool) {
	r.Findings = append(r.Findings, Finding{Pass: pass, Package: pkg, Detail: detail, Repaired: repaired})
}

// Checker runs the consistency passes.
type Checker struct {
	fs       types.FS
	paths    paths.Paths
	registry *registry.Store
	graph    *depgraph.Graph
	prefs    *prefs.Synthesizer
	backend  backend.Backend
	channel  string
	logger   zerolog.Logger
}

// New creates a Checker over the same stores the engine uses.
func New(fs types.FS, p paths.Paths, reg *registry.Store, graph *depgraph.Graph, syn *prefs.Synthesizer, be backend.Backend, channel string) *Checker {
	return &Checker{
		fs:       fs,
		paths:    p,
		registry: reg,
		graph:    graph,
		prefs:    syn,
		backend:  be,
		channel:  channel,
		logger:   logging.GetLogger("doctor"),
	}
}

// Check runs all passes. Passes are independent and cumulative: a
// failure inside one is recorded as a finding and the remaining passes
// still run. With repair authorized, orphaned dependency edges are
// cleaned up; everything else is report-only.
func (c *Checker) Check(repair bool) (*Report, error) {
	report := &Report{}

	c.checkEdgeOrphans(report, repair)
	c.checkInstallState(report)
	c.checkPinPresence(report)
	c.checkPinOrphans(report)
	c.checkPinFormat(report)
	c.checkReachability(report)

	c.logger.Info().Int("issues", report.Issues()).Bool("repair", repair).
		Msg("Consistency check finished")
	return report, nil
}

// checkEdgeOrphans verifies every edge's parent is still a registry
// member. Under repair, the orphaned edge goes and the dependency is
// demoted if that was its last edge.
func (c *Checker) checkEdgeOrphans(report *Report, repair bool) {
	edges, err := c.graph.Edges()
	if err != nil {
		report.add(PassEdgeOrphans, "", "cannot read dependency graph: "+err.Error(), false)
		return
	}
	for _, edge := range edges {
		tracked, err := c.registry.Contains(edge.Parent)
		if err != nil {
			report.add(PassEdgeOrphans, edge.Parent, "cannot read registry: "+err.Error(), false)
			return
		}
		if tracked {
			continue
		}
		detail := fmt.Sprintf("edge %s has untracked parent %s", edge, edge.Parent)
		if !repair {
			report.add(PassEdgeOrphans, edge.Dep, detail, false)
			continue
		}
		if err := c.repairOrphanEdge(edge); err != nil {
			report.add(PassEdgeOrphans, edge.Dep, detail+" (repair failed: "+err.Error()+")", false)
			continue
		}
		report.add(PassEdgeOrphans, edge.Dep, detail, true)
	}
}

func (c *Checker) repairOrphanEdge(edge depgraph.Edge) error {
	if err := c.graph.RemoveEdge(edge.Dep, edge.Parent); err != nil {
		return err
	}
	parents, err := c.graph.ParentsOf(edge.Dep)
	if err != nil {
		return err
	}
	if len(parents) > 0 {
		return nil
	}
	if err := c.registry.Remove(edge.Dep); err != nil && !errors.IsCode(err, errors.ErrNotTracked) {
		return err
	}
	return c.prefs.Remove(edge.Dep)
}

// checkInstallState reports registry members the backend does not see
// as installed. Never auto-repaired: installing is a destructive action
// the checker must not take unprompted.
func (c *Checker) checkInstallState(report *Report) {
	names, err := c.registry.List()
	if err != nil {
		report.add(PassInstallState, "", "cannot read registry: "+err.Error(), false)
		return
	}
	for _, name := range names {
		version, err := c.backend.InstalledVersion(name)
		if err != nil {
			report.add(PassInstallState, name, "backend query failed: "+err.Error(), false)
			continue
		}
		if version == "" {
			report.add(PassInstallState, name, "tracked but not installed", false)
		}
	}
}

// checkPinPresence verifies every registry member has its pin file.
func (c *Checker) checkPinPresence(report *Report) {
	names, err := c.registry.List()
	if err != nil {
		report.add(PassPinPresence, "", "cannot read registry: "+err.Error(), false)
		return
	}
	for _, name := range names {
		present, err := c.prefs.Exists(name)
		if err != nil {
			report.add(PassPinPresence, name, "cannot derive pin path: "+err.Error(), false)
			continue
		}
		if !present {
			report.add(PassPinPresence, name, "tracked but pin file missing", false)
		}
	}
}

// checkPinOrphans reports aptr pin files that match no registry member.
// The global baseline file is excluded by construction.
func (c *Checker) checkPinOrphans(report *Report) {
	files, err := c.prefs.ListPinPaths()
	if err != nil {
		report.add(PassPinOrphans, "", "cannot read preferences directory: "+err.Error(), false)
		return
	}
	names, err := c.registry.List()
	if err != nil {
		report.add(PassPinOrphans, "", "cannot read registry: "+err.Error(), false)
		return
	}
	members := make(map[string]bool, len(names))
	for _, name := range names {
		members[types.SanitizeName(name)] = true
	}
	for _, file := range files {
		id := prefs.PackageFromFileName(file)
		if !members[id] {
			report.add(PassPinOrphans, id, "pin file "+file+" matches no tracked package", false)
		}
	}
}

// checkPinFormat verifies every aptr pin file parses into stanzas with
// the three required fields.
func (c *Checker) checkPinFormat(report *Report) {
	files, err := c.prefs.ListPinPaths()
	if err != nil {
		report.add(PassPinFormat, "", "cannot read preferences directory: "+err.Error(), false)
		return
	}
	for _, file := range files {
		path := filepath.Join(c.paths.PreferencesDir(), file)
		data, err := c.fs.ReadFile(path)
		if err != nil {
			report.add(PassPinFormat, prefs.PackageFromFileName(file),
				"cannot read pin file: "+err.Error(), false)
			continue
		}
		if _, err := prefs.Parse(data); err != nil {
			report.add(PassPinFormat, prefs.PackageFromFileName(file),
				"malformed pin file "+file+": "+err.Error(), false)
		}
	}
}

// checkReachability probes the unstable channel. A failed probe is one
// finding, not a fatal error.
func (c *Checker) checkReachability(report *Report) {
	if err := c.backend.Probe(c.channel); err != nil {
		report.add(PassReachability, "", "channel "+c.channel+" unreachable: "+err.Error(), false)
	}
}
