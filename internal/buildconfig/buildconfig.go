package buildconfig

import "fmt"

// Set with -ldflags "-X github.com/Harshitk-cp/fastinf/internal/buildconfig.version=..."
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func Version() string { return version }

func Commit() string { return commit }

// VersionInfo is the build metadata reported by /health and the CLI.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
		"date":    date,
	}
}

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("fastinf %s (commit %s, built %s)", version, commit, date)
}
