package config

import (
	"testing"
	"time"
)

func TestParseEnvFromDefaults(t *testing.T) {
	e, err := ParseEnvFrom(map[string]string{})
	if err != nil {
		t.Fatalf("ParseEnvFrom: %v", err)
	}
	if e.LogLevel != "info" || e.LogFormat != "console" || e.ConfigDir != "." {
		t.Errorf("unexpected defaults %+v", e)
	}
	if e.Debounce != 100*time.Millisecond || e.MetricsAddr != "" || e.NoStatus {
		t.Errorf("unexpected defaults %+v", e)
	}
}

func TestParseEnvFromOverrides(t *testing.T) {
	e, err := ParseEnvFrom(map[string]string{
		"REFETCH_LOG_LEVEL":       "debug",
		"REFETCH_LOG_FORMAT":      "json",
		"REFETCH_METRICS_ADDR":    ":9100",
		"REFETCH_CONFIG":          "/etc/refetch.yaml",
		"REFETCH_RELOAD_DEBOUNCE": "1s",
		"REFETCH_NO_STATUS":       "true",
		"LOG_LEVEL":               "error",
	})
	if err != nil {
		t.Fatalf("ParseEnvFrom: %v", err)
	}
	if e.LogLevel != "debug" {
		t.Errorf("unprefixed variable must be ignored, got level %q", e.LogLevel)
	}
	if e.LogFormat != "json" || e.MetricsAddr != ":9100" || e.ConfigPath != "/etc/refetch.yaml" {
		t.Errorf("unexpected env %+v", e)
	}
	if e.Debounce != time.Second || !e.NoStatus {
		t.Errorf("unexpected env %+v", e)
	}
}

func TestParseEnvFromInvalid(t *testing.T) {
	if _, err := ParseEnvFrom(map[string]string{"REFETCH_RELOAD_DEBOUNCE": "later"}); err == nil {
		t.Error("expected error for unparsable duration")
	}
}
