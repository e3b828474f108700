// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/streamwatch/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/streamwatch/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/streamwatch/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"runtime"
	"runtime/debug"
)

// Build-time variables (set via ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit hash (short form)
	Commit = "unknown"

	// BuildTime is the UTC build timestamp (ISO 8601)
	BuildTime = "unknown"
)

// Info is the build description served on /health.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the build description. A commit missing from ldflags is
// taken from the embedded VCS info when present.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if info.Commit != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				info.Commit = s.Value[:7]
			}
		}
	}
	return info
}

// String returns a formatted version string.
func String() string {
	i := Get()
	return i.Version + " (" + i.Commit + ") built " + i.BuildTime + " " + i.GoVersion
}
