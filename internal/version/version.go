// Package version holds healthgate's build metadata, injected at build
// time via -ldflags.
package version

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
