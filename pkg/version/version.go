package version

import (
	"fmt"
	"runtime"
)

// Name is the program name used in version output and MCP server info.
const Name = "nova_bridge"

// These variables are set via ldflags during build.
var (
	Version   = "dev"
	Commit    = "none"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Summary returns the version with a short commit suffix when known.
func Summary() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	if Commit != "" && Commit != "none" {
		short := Commit
		if len(short) > 7 {
			short = short[:7]
		}
		return fmt.Sprintf("%s (%s)", v, short)
	}
	return v
}

// Info returns formatted version information
func Info() string {
	return fmt.Sprintf("%s version %s\n  commit: %s\n  built: %s\n  go: %s\n  platform: %s",
		Name, Summary(), Commit, Date, GoVersion, Platform())
}
