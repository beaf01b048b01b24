package version

// Build information set by ldflags
var (
	Version = "dev"     // -X github.com/domwxyz/aptr/internal/version.Version={{.Version}}
	Commit  = "unknown" // -X github.com/domwxyz/aptr/internal/version.Commit={{.Commit}}
	Date    = "unknown" // -X github.com/domwxyz/aptr/internal/version.Date={{.Date}}
)
