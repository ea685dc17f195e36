// Package version reports the build of the habitat value tools.
package version

import "fmt"

// Set with -ldflags "-X habitat-value/internal/version.Version=...".
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the build for banners and -version output.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
