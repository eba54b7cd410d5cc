package version

import (
	"runtime/debug"
	"testing"
)

func TestFromBuildInfo(t *testing.T) {
	tests := []struct {
		name       string
		info       *debug.BuildInfo
		ok         bool
		wantVer    string
		wantCommit string
	}{
		{name: "no build info", ok: false},
		{
			name: "tagged module",
			info: &debug.BuildInfo{
				Main:     debug.Module{Version: "v1.4.0"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}},
			},
			ok:         true,
			wantVer:    "v1.4.0",
			wantCommit: "0123456",
		},
		{
			name: "dirty devel build",
			info: &debug.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abcdef0123"},
					{Key: "vcs.time", Value: "2026-03-14T10:00:00Z"},
					{Key: "vcs.modified", Value: "true"},
				},
			},
			ok:         true,
			wantVer:    "dev-20260314",
			wantCommit: "abcdef0-dirty",
		},
		{
			name: "short revision",
			info: &debug.BuildInfo{
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}},
			},
			ok:         true,
			wantCommit: "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ver, commit := fromBuildInfo(tt.info, tt.ok)
			if ver != tt.wantVer {
				t.Errorf("version = %q, want %q", ver, tt.wantVer)
			}
			if commit != tt.wantCommit {
				t.Errorf("commit = %q, want %q", commit, tt.wantCommit)
			}
		})
	}
}

func TestString(t *testing.T) {
	if Version == "" || Commit == "" {
		t.Fatal("init should always populate Version and Commit")
	}
	want := "tuyalocal " + Version + " (commit: " + Commit + ")"
	if got := String("tuyalocal"); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
