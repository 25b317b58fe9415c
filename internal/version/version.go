// Package version carries build metadata, set at link time with
// -ldflags "-X github.com/banshee-data/watchpost/internal/version.Version=...".
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata reported by /health and the version command.
type Info struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

func Get() Info {
	return Info{Version: Version, GitSHA: GitSHA, BuildTime: BuildTime}
}

func (i Info) String() string {
	return fmt.Sprintf("watchpost %s (%s, built %s)", i.Version, i.GitSHA, i.BuildTime)
}
