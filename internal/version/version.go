// Package version holds the TaskPilot build stamp.
package version

import "fmt"

// Set via -ldflags "-X github.com/GoCodeAlone/taskpilot/internal/version.Version=..." at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build stamp for humans, e.g. "dev (commit unknown, built unknown)".
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}
