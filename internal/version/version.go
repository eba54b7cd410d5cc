// Package version reports the build version of the tuyalocal binaries.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/tuyalocal/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/tuyalocal/internal/version.Commit=abc1234"
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Version == "" || Commit == "" {
		v, c := fromBuildInfo(debug.ReadBuildInfo())
		if Version == "" {
			Version = v
		}
		if Commit == "" {
			Commit = c
		}
	}

	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildInfo derives a version from module and VCS stamps.
// A tagged module version wins over the VCS commit date.
func fromBuildInfo(info *debug.BuildInfo, ok bool) (ver, commit string) {
	if !ok || info == nil {
		return "", ""
	}

	if mv := info.Main.Version; mv != "" && mv != "(devel)" {
		ver = mv
	}

	var revision, vcsTime string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			vcsTime = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	if revision != "" {
		commit = revision
		if len(commit) > 7 {
			commit = commit[:7]
		}
		if dirty {
			commit += "-dirty"
		}
	}

	if ver == "" && vcsTime != "" {
		if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
			ver = "dev-" + t.UTC().Format("20060102")
		}
	}
	return ver, commit
}

// Full returns "<version> (commit: <commit>)"
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// String formats the version line printed by a binary
func String(binary string) string {
	return binary + " " + Full()
}
