// Package version holds build metadata injected with -ldflags.
package version

// Set at build time, for example
// -X github.com/bissquit/apron-guard/internal/version.Version=1.2.0.
var (
	Version   = "0.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the build metadata served by GET /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{Version: Version, Commit: GitCommit, BuildDate: BuildDate}
}
