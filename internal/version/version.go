// Package version holds build metadata injected via ldflags.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String returns the full build identifier, e.g. "dev (unknown, unknown)".
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, Date)
}
