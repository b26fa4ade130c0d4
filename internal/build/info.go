// Package build carries version information stamped in by the linker.
package build

import (
	"fmt"
	"log/slog"
)

// These variables are set at build time via -ldflags.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

// String returns a single human-readable build info string.
func String() string {
	return fmt.Sprintf("notifier %s (commit %s, built %s)", Version, CommitSHA, BuildDate)
}

// LogAttrs returns the build info as a log group.
func LogAttrs() slog.Attr {
	return slog.Group("build",
		slog.String("version", Version),
		slog.String("commit", CommitSHA),
		slog.String("build_date", BuildDate),
	)
}
