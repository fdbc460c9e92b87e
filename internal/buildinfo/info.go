// Package buildinfo carries the release identity stamped in by the linker:
//
//	go build -ldflags "-X github.com/cleared-dev/stmtimport/internal/buildinfo.Version=v0.3.0"
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the identity for --version.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
