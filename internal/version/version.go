// Package version holds build-time version information for the tubeqa binary.
// The variables are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/tubeqa-go/internal/version.Version=v1.2.3 \
//	                    -X github.com/54b3r/tubeqa-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/tubeqa-go/internal/version.BuildDate=2025-01-01"
//
// Without ldflags, Commit falls back to the VCS revision embedded by the Go
// toolchain when available.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA of the commit the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC date the binary was built (RFC3339 format).
var BuildDate = "unknown"

// String renders the version line printed by `tubeqa version` and served
// on /api/health.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, commit(), BuildDate)
}

func commit() string {
	if Commit != "unknown" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return Commit
}
