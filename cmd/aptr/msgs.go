package main

// Short messages (one-liners)
const (
	MsgRootShort = "Track individual packages against the unstable channel"
	MsgRootLong  = `aptr keeps a stable system stable while letting chosen packages roll
against the unstable channel. It maintains a registry of rolling
packages, pins them (and the direct dependencies they drag in) through
APT preferences, and can verify that registry, pins and installed state
still agree.`

	MsgVersionShort    = "Print version information"
	MsgCompletionShort = "Generate shell completion script"

	MsgInitShort = "Create the baseline preference and source files"
	MsgInitLong  = `Init writes the one-time files aptr needs: the global preference
baselines (stable 990/900, unstable 200, experimental 50), the unstable
channel's source declaration (mirror detected from the existing stable
sources when possible), and empty state files. Existing files are left
alone unless --force is given.`

	MsgRollShort = "Mark an installed package as rolling"
	MsgRollLong  = `Roll promotes an already-installed package to rolling: it is pinned to
the unstable channel at priority 990, its direct dependencies are
pinned at 500, and the package is upgraded from unstable.`

	MsgInstallShort = "Install a package from unstable and mark it rolling"
	MsgInstallLong  = `Install promotes a package that is not installed yet: it is pulled
straight from the unstable channel and tracked exactly like a rolled
package.`

	MsgUnrollShort = "Stop tracking a rolling package"
	MsgUnrollLong  = `Unroll removes a package's registry entry and pin. Dependencies it
pulled in are released only when no other rolling package still needs
them. Nothing is uninstalled; a later full upgrade may let the package
fall back to the stable version.`

	MsgUpgradeShort = "Upgrade every rolling package from unstable"
	MsgUpgradeLong  = `Upgrade sweeps all tracked packages (primaries and dependencies)
through an install pinned to unstable. Failures are collected and
reported at the end; one failure does not stop the sweep.`

	MsgListShort   = "List rolling packages"
	MsgStatusShort = "Show detail for one rolling package"

	MsgCheckShort = "Check registry, pins and install state for drift"
	MsgCheckLong  = `Check runs the consistency passes: orphaned dependency edges, tracked
packages that are not installed, missing pin files, orphaned pin files,
malformed pin files, and unstable channel reachability. With --repair,
orphaned edges are cleaned up; nothing is ever installed by check.`

	// Status output
	MsgNoPackages   = "No rolling packages."
	MsgListHeader   = "Rolling packages:"
	MsgCheckClean   = "Everything consistent."
	MsgDryRunNotice = "\nDRY RUN MODE - No changes were made"
	MsgInitCreated  = "  created %s\n"
	MsgInitSkipped  = "  kept    %s\n"
)

// Examples
const (
	MsgRollExample = `  # Roll firefox against unstable
  aptr roll firefox

  # Preview what rolling would pin
  aptr roll --dry-run firefox`

	MsgUnrollExample = `  # Stop tracking firefox
  aptr unroll firefox`
)
