// Package version exposes build metadata stamped in via ldflags.
package version

import "runtime"

// Set at build time:
//
//	go build -ldflags "-X .../internal/version.version=v1.2.3 -X .../internal/version.commit=$(git rev-parse --short HEAD) -X .../internal/version.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

func Get() Info {
	return Info{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}
