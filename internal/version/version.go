// Package version holds build-time version metadata.
package version

// Version and Commit are set at build time via:
//
//	go build -ldflags "-X .../internal/version.Version=0.4.0 -X .../internal/version.Commit=abc123"
var (
	Version = "dev"
	Commit  = "dev"
)
