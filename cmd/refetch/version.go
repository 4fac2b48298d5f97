package main

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var version = "dev"

var commit = "none"

var date = "unknown"

func versionLine() string {
	if version != "dev" {
		return fmt.Sprintf("refetch version %s", version)
	}

	c := strings.TrimSpace(commit)
	d := strings.TrimSpace(date)

	if unset(c, "none") || unset(d, "unknown") {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				v := strings.TrimSpace(s.Value)
				switch {
				case s.Key == "vcs.revision" && unset(c, "none") && v != "":
					c = v
				case s.Key == "vcs.time" && unset(d, "unknown") && v != "":
					d = v
				}
			}
		}
	}

	if len(c) > 7 && !unset(c, "none") {
		c = c[:7]
	}

	switch {
	case unset(c, "none") && unset(d, "unknown"):
		return "refetch version dev"
	case unset(c, "none"):
		return fmt.Sprintf("refetch version dev (built %s)", d)
	case unset(d, "unknown"):
		return fmt.Sprintf("refetch version dev (commit %s)", c)
	}
	return fmt.Sprintf("refetch version dev (commit %s, built %s)", c, d)
}

// shortVersion is the version shown in the banner.
func shortVersion() string {
	return strings.TrimPrefix(versionLine(), "refetch version ")
}

func unset(v, placeholder string) bool {
	return v == "" || v == placeholder
}
