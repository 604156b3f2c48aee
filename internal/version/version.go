// Package version carries build metadata injected via ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/buildexecutor/internal/version.Version=v0.3.0"
package version

import "fmt"

var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("build-executor %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
