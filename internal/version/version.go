// Package version holds build-time version information for the pdfrag
// binary. The variables are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/pdfrag-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/pdfrag-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/pdfrag-go/internal/version.BuildDate=2026-01-01"
//
// Without ldflags (e.g. `go run`) the values fall back to readable defaults.
package version

import (
	"fmt"
	"runtime"
)

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// String renders the full version line printed by `pdfrag version`.
func String() string {
	return fmt.Sprintf("pdfrag %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
