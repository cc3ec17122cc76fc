// Package version holds build-time version information for the waiterbot
// binary. The variables are populated via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/waiterbot-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/waiterbot-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/waiterbot-go/internal/version.BuildDate=2026-01-01"
//
// Unset values fall back to "dev"/"unknown" so `go run` binaries still report
// something useful.
package version

import "fmt"

// Version is the semantic version of the binary (e.g. "v0.3.0").
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC date the binary was built (RFC3339).
var BuildDate = "unknown"

// String renders the version line printed by `waiterbot version`.
func String() string {
	return fmt.Sprintf("waiterbot %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
