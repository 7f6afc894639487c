package version

import (
	"fmt"
	"io"
	"runtime"
)

// Version number set by the build
var Version = ""

// Commit id set by the build
var Commit = ""

// PrintVersion writes the build information to w
func PrintVersion(w io.Writer) {
	if len(Version) > 0 {
		fmt.Fprintf(w, "Version: %v\n", Version)

		if len(Commit) > 0 {
			fmt.Fprintf(w, "Commit: %v\n", Commit)
		}
	} else {
		fmt.Fprintln(w, "Version information not available")
	}

	fmt.Fprintf(w, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// ShortVersion returns version@commit when both are known
func ShortVersion() string {
	if len(Version) > 0 {
		if len(Commit) > 0 {
			return Version + "@" + Commit
		}
		return Version
	}
	return "unknown"
}
