package types

import "time"

// PackageOutcome records what happened to a single package during a
// command-level operation.
type PackageOutcome struct {
	Name    string
	Class   PinClass
	Success bool
	Detail  string
}

// CommandResult is the structured result every command-level operation
// returns. The CLI layer owns rendering; operations only fill this in.
type CommandResult struct {
	Command   string
	Timestamp time.Time
	DryRun    bool
	Message   string
	Packages  []PackageOutcome
}

// PackageStatus is the display form of a tracked package used by the
// list and status commands.
type PackageStatus struct {
	Name             string
	Class            PinClass
	Parents          []string
	Dependencies     []string
	InstalledVersion string
	CandidateVersion string
	PinPath          string
	PinPresent       bool
}
