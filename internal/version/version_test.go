package version

import (
	"runtime/debug"
	"testing"
)

func withBuildInfo(t *testing.T, settings ...debug.BuildSetting) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: settings}, true
	}
	t.Cleanup(func() { readBuildInfo = orig })
}

func TestGetFallsBackToVCSStamp(t *testing.T) {
	withBuildInfo(t,
		debug.BuildSetting{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		debug.BuildSetting{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	)

	info := Get()
	if info.GitCommit != "0123456789abcdef0123" || info.BuildDate != "2026-01-02T03:04:05Z" || !info.Modified {
		t.Errorf("Get() = %+v", info)
	}
	want := "dev (commit 0123456789ab-dirty, built 2026-01-02T03:04:05Z, " + info.GoVersion + " " + info.Platform + ")"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestLinkerValuesWin(t *testing.T) {
	withBuildInfo(t, debug.BuildSetting{Key: "vcs.revision", Value: "from-vcs"})
	orig := GitCommit
	GitCommit = "from-ldflags"
	t.Cleanup(func() { GitCommit = orig })

	if got := Get().GitCommit; got != "from-ldflags" {
		t.Errorf("GitCommit = %q, want the -X value", got)
	}
}
