// Package version exposes build information stamped in via -ldflags.
package version

import "runtime"

// Set at build time via -ldflags "-X github.com/streamfork/relay/internal/version.version=..."
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Info holds build metadata for startup logging and health endpoints.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}
