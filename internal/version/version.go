// Package version exposes build metadata for the /version endpoint.
package version

import "runtime"

// Set at build time via -ldflags "-X ...". Defaults identify a local
// development build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the JSON shape served to operators.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get reports the build this binary was produced from, including the Go
// toolchain version it was compiled with.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}
