package main

import (
	"strings"
	"testing"
)

func TestVersionLine(t *testing.T) {
	oldVersion := version
	oldCommit := commit
	oldDate := date
	defer func() {
		version = oldVersion
		commit = oldCommit
		date = oldDate
	}()

	tests := []struct {
		name                  string
		version, commit, date string
		want                  string
	}{
		{"release version", "v1.2.3", "none", "unknown", "refetch version v1.2.3"},
		{"dev no metadata", "dev", "none", "unknown", "refetch version dev"},
		{"dev commit only", "dev", "abcdef012345", "unknown", "refetch version dev (commit abcdef0)"},
		{"dev date only", "dev", "none", "2026-01-18T16:00:00Z", "refetch version dev (built 2026-01-18T16:00:00Z)"},
		{"dev commit and date", "dev", "abcdef012345", "2026-01-18T16:00:00Z", "refetch version dev (commit abcdef0, built 2026-01-18T16:00:00Z)"},
		{"short commit kept", "dev", "abc", "unknown", "refetch version dev (commit abc)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, commit, date = tt.version, tt.commit, tt.date
			if got := versionLine(); got != tt.want {
				t.Fatalf("versionLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShortVersion(t *testing.T) {
	old := version
	defer func() { version = old }()

	version = "v2.0.0"
	if got := shortVersion(); got != "v2.0.0" {
		t.Errorf("shortVersion() = %q", got)
	}
	version = "dev"
	if got := shortVersion(); !strings.HasPrefix(got, "dev") {
		t.Errorf("shortVersion() = %q", got)
	}
}
