// Package buildinfo holds build-time metadata injected through ldflags. It is
// kept apart from user configuration.
package buildinfo

import (
	"fmt"
	"runtime"
)

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Info describes the running binary.
type Info struct {
	// Version is the git tag the binary was built from
	Version string

	// BuildDate is when the binary was built
	BuildDate string

	// Commit is the git revision
	Commit string
}

// New returns build metadata. Empty values read as UnknownValue.
func New(version, buildDate, commit string) *Info {
	return &Info{Version: version, BuildDate: buildDate, Commit: commit}
}

// GetVersion returns the version or UnknownValue.
func (i *Info) GetVersion() string {
	if i == nil || i.Version == "" {
		return UnknownValue
	}
	return i.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (i *Info) GetBuildDate() string {
	if i == nil || i.BuildDate == "" {
		return UnknownValue
	}
	return i.BuildDate
}

// GetCommit returns the commit or UnknownValue.
func (i *Info) GetCommit() string {
	if i == nil || i.Commit == "" {
		return UnknownValue
	}
	return i.Commit
}

// String formats the metadata for the version command.
func (i *Info) String() string {
	return fmt.Sprintf("rtbridge %s (commit %s, built %s) %s %s/%s",
		i.GetVersion(), i.GetCommit(), i.GetBuildDate(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
