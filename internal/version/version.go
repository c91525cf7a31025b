// Package version carries the build metadata the release pipeline stamps in.
package version

import (
	"fmt"
	"runtime"
)

// Overridden through -ldflags -X at build time; plain source builds report
// a dev version with an unknown commit.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info renders the single-line build description printed by `roost version`.
func Info() string {
	return fmt.Sprintf("roost %s %s (built %s) %s/%s",
		Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// short truncates a full commit hash to the conventional 7 characters.
func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
