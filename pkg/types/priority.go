package types

// Pin priorities. PriorityPrimary equals the stable channel's own pin so
// an explicit roll wins the candidate election; PriorityDependency sits
// between stable's pin and unstable's default so an auto-pinned
// dependency resolves against unstable without dragging unrelated
// packages along.
const (
	PriorityPrimary    = 990
	PriorityDependency = 500

	// Baseline channel priorities written once by `aptr init`.
	PriorityStableRelease = 990
	PriorityStableUpdates = 900
	PriorityUnstable      = 200
	PriorityExperimental  = 50
)

// PinClass labels why a package is rolling. The class is fixed at first
// registration and is never recomputed from graph shape.
type PinClass int

const (
	// ClassPrimary marks a package the administrator rolled explicitly.
	ClassPrimary PinClass = iota
	// ClassDependency marks a package pulled in by a primary's
	// one-hop dependency scan.
	ClassDependency
)

func (c PinClass) String() string {
	if c == ClassPrimary {
		return "primary"
	}
	return "dependency"
}

// Priority returns the pin priority for the class.
func (c PinClass) Priority() int {
	if c == ClassPrimary {
		return PriorityPrimary
	}
	return PriorityDependency
}
