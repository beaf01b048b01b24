package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/domwxyz/aptr/pkg/backend"
	"github.com/domwxyz/aptr/pkg/config"
	"github.com/domwxyz/aptr/pkg/depgraph"
	"github.com/domwxyz/aptr/pkg/doctor"
	"github.com/domwxyz/aptr/pkg/filesystem"
	"github.com/domwxyz/aptr/pkg/initialize"
	"github.com/domwxyz/aptr/pkg/lockfile"
	"github.com/domwxyz/aptr/pkg/paths"
	"github.com/domwxyz/aptr/pkg/prefs"
	"github.com/domwxyz/aptr/pkg/registry"
	"github.com/domwxyz/aptr/pkg/rolling"
	"github.com/domwxyz/aptr/pkg/types"
)

// app wires the stores, backend and engine for one invocation.
type app struct {
	cfg      *config.Config
	fs       types.FS
	paths    paths.Paths
	registry *registry.Store
	graph    *depgraph.Graph
	prefs    *prefs.Synthesizer
	backend  backend.Backend
	engine   *rolling.Engine
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	fs := filesystem.NewOS()
	p := paths.New()
	reg := registry.New(fs, p.RegistryPath())
	graph := depgraph.New(fs, p.DependsPath())
	syn := prefs.New(fs, p, cfg.Channels.Unstable)
	be := backend.NewApt(
		time.Duration(cfg.Backend.CacheTTL)*time.Second,
		time.Duration(cfg.Backend.ProbeTimeout)*time.Second,
	)
	eng := rolling.New(reg, graph, syn, be, cfg.Channels.Unstable)
	eng.DryRun = dryRun
	eng.NonInteractive = assumeYes

	return &app{
		cfg:      cfg,
		fs:       fs,
		paths:    p,
		registry: reg,
		graph:    graph,
		prefs:    syn,
		backend:  be,
		engine:   eng,
	}, nil
}

// withLock runs fn holding the process lock. Dry runs mutate nothing
// and skip it; read-only commands never call this.
func (a *app) withLock(fn func() error) error {
	if dryRun {
		return fn()
	}
	lock, err := lockfile.Acquire(a.paths.LockPath())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()
	return fn()
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: MsgInitShort,
	Long:  MsgInitLong,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.withLock(func() error {
			result, err := initialize.New(a.fs, a.paths, a.cfg).Run(initialize.Options{Force: force})
			if err != nil {
				return err
			}
			for _, path := range result.Created {
				fmt.Printf(MsgInitCreated, path)
			}
			for _, path := range result.Skipped {
				fmt.Printf(MsgInitSkipped, path)
			}
			return nil
		})
	},
}

var rollCmd = &cobra.Command{
	Use:     "roll <package>...",
	Short:   MsgRollShort,
	Long:    MsgRollLong,
	Example: MsgRollExample,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.withLock(func() error {
			for _, name := range args {
				result, err := a.engine.Roll(name)
				if err != nil {
					return err
				}
				printResult(result)
			}
			return nil
		})
	},
}

var installCmd = &cobra.Command{
	Use:   "install <package>...",
	Short: MsgInstallShort,
	Long:  MsgInstallLong,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.withLock(func() error {
			for _, name := range args {
				result, err := a.engine.Install(name)
				if err != nil {
					return err
				}
				printResult(result)
			}
			return nil
		})
	},
}

var unrollCmd = &cobra.Command{
	Use:     "unroll <package>...",
	Short:   MsgUnrollShort,
	Long:    MsgUnrollLong,
	Example: MsgUnrollExample,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.withLock(func() error {
			for _, name := range args {
				result, err := a.engine.Unroll(name)
				if err != nil {
					return err
				}
				printResult(result)
			}
			return nil
		})
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: MsgUpgradeShort,
	Long:  MsgUpgradeLong,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return a.withLock(func() error {
			result, upgradeErr := a.engine.UpgradeAll()
			if result != nil {
				printResult(result)
			}
			return upgradeErr
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: MsgListShort,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		statuses, err := a.engine.ListStatus()
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Println(MsgNoPackages)
			return nil
		}
		fmt.Println(formatBold(MsgListHeader))
		for _, st := range statuses {
			fmt.Printf("  %-30s %-10s installed=%s candidate=%s\n",
				st.Name, st.Class, orDash(st.InstalledVersion), orDash(st.CandidateVersion))
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <package>",
	Short: MsgStatusShort,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		st, err := a.engine.Status(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", formatBold(st.Name))
		fmt.Printf("  class:     %s\n", st.Class)
		fmt.Printf("  installed: %s\n", orDash(st.InstalledVersion))
		fmt.Printf("  candidate: %s\n", orDash(st.CandidateVersion))
		fmt.Printf("  pin:       %s (present=%t)\n", st.PinPath, st.PinPresent)
		if len(st.Parents) > 0 {
			fmt.Printf("  parents:   %v\n", st.Parents)
		}
		if len(st.Dependencies) > 0 {
			fmt.Printf("  pulls in:  %v\n", st.Dependencies)
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: MsgCheckShort,
	Long:  MsgCheckLong,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repair, _ := cmd.Flags().GetBool("repair")
		a, err := newApp()
		if err != nil {
			return err
		}
		run := func() error {
			checker := doctor.New(a.fs, a.paths, a.registry, a.graph, a.prefs, a.backend, a.cfg.Channels.Unstable)
			report, err := checker.Check(repair)
			if err != nil {
				return err
			}
			if report.Clean() {
				fmt.Println(MsgCheckClean)
				return nil
			}
			for _, f := range report.Findings {
				marker := "✗"
				if f.Repaired {
					marker = "✓ repaired"
				}
				fmt.Printf("  [%s] %s %s %s\n", f.Pass, marker, f.Package, f.Detail)
			}
			return fmt.Errorf("%d consistency issues found", report.Issues())
		}
		// Repairing mutates durable state and needs the lock; a plain
		// check is read-only and runs without it.
		if repair {
			return a.withLock(run)
		}
		return run()
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing preference and source files")
	checkCmd.Flags().Bool("repair", false, "Repair the inconsistencies that can be repaired safely")
}

func printResult(result *types.CommandResult) {
	fmt.Println(result.Message)
	for _, pkg := range result.Packages {
		marker := "✓"
		if !pkg.Success {
			marker = "✗"
		}
		fmt.Printf("  %s %s (%s) %s\n", marker, pkg.Name, pkg.Class, pkg.Detail)
	}
	if result.DryRun {
		fmt.Println(MsgDryRunNotice)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
