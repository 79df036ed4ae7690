package version

import (
	"runtime/debug"
	"testing"
)

func TestMergePrefersLdflags(t *testing.T) {
	t.Parallel()
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	got := merge(Info{Version: "v1.0.0"}, bi)
	if got.Version != "v1.0.0" {
		t.Fatalf("Version = %q, want ldflags value", got.Version)
	}
	if got.Commit != "0123456789abcdef0123" || got.BuildTime != "2026-10-01T12:00:00Z" || !got.Modified {
		t.Fatalf("unexpected merge result: %+v", got)
	}
	if s := got.String(); s != "v1.0.0 (0123456789ab, modified)" {
		t.Fatalf("String() = %q", s)
	}
}

func TestMergeIgnoresDevelVersion(t *testing.T) {
	t.Parallel()
	got := merge(Info{}, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if got.Version != "" {
		t.Fatalf("Version = %q, want empty", got.Version)
	}
	if s := (Info{Version: "devel"}).String(); s != "devel" {
		t.Fatalf("String() = %q", s)
	}
}

func TestResolveNeverEmpty(t *testing.T) {
	t.Parallel()
	if Resolve().Version == "" {
		t.Fatal("Resolve returned an empty version")
	}
}
