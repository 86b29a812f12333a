// Package version carries the identity stamped into kiln binaries at
// link time.
package version

import "runtime"

var (
	// Version is the release version (set by build flags)
	Version = "dev"
	// Commit is the git commit hash (set by build flags)
	Commit = "unknown"
	// BuildDate is the build date (set by build flags)
	BuildDate = "unknown"
)

// BakefileFormat is the bakefile schema revision this binary builds.
// Bumped whenever the manifest layout changes incompatibly.
const BakefileFormat = 1

// Info is a snapshot of the build identity.
type Info struct {
	Version        string
	Commit         string
	BuildDate      string
	BakefileFormat int
	GoVersion      string
	Platform       string
}

func Get() Info {
	return Info{
		Version:        Version,
		Commit:         Commit,
		BuildDate:      BuildDate,
		BakefileFormat: BakefileFormat,
		GoVersion:      runtime.Version(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// UserAgent identifies kiln to registries on push and pull.
func (i Info) UserAgent() string {
	return "kiln/" + i.Version
}

// Full returns the one-line form printed by the version command.
func (i Info) Full() string {
	return i.Version + " (" + i.Commit + ") built " + i.BuildDate +
		" " + i.GoVersion + " " + i.Platform
}
