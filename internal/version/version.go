// Package version holds build metadata injected via ldflags.
package version

// Set at build time:
//
//	-ldflags "-X .../internal/version.Version=v1.2.3 -X .../internal/version.Commit=abc123"
var (
	Version = "dev"
	Commit  = "unknown"
)
