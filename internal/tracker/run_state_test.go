package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteRunStateRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	w := NewWriter(dir)

	rs := RunState{
		RunID:      "abc",
		PID:        123,
		ConfigName: "prod",
		StartedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		Status:     "running",
		Controllers: []ControllerState{
			{Name: "health", Phase: "done", Tries: 1, MaxTries: 3, Data: "ok"},
			{Name: "sync", Phase: "errored", Tries: 2, MaxTries: 3, IsInRetryTimeout: true, Error: "exit status 1"},
		},
	}
	if err := w.WriteRunState(rs); err != nil {
		t.Fatalf("WriteRunState error: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("read state.json: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("invalid json: %v", err)
	}

	got, err := w.LoadRunState()
	if err != nil || got == nil {
		t.Fatalf("LoadRunState: %v %v", got, err)
	}
	c, ok := got.Controller("sync")
	if !ok || !c.IsInRetryTimeout || c.Tries != 2 {
		t.Errorf("unexpected controller state %+v", c)
	}
	if _, ok := got.Controller("missing"); ok {
		t.Error("unexpected controller found")
	}
}

func TestLoadRunStateMissing(t *testing.T) {
	rs, err := NewWriter(t.TempDir()).LoadRunState()
	if rs != nil || err != nil {
		t.Errorf("expected nil, nil for missing state, got %v %v", rs, err)
	}
}

func TestLoadRunStateCorrupt(t *testing.T) {
	w := NewWriter(t.TempDir())
	if err := os.WriteFile(w.RunStatePath, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := w.LoadRunState(); err == nil {
		t.Error("expected parse error")
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if len(a) != 16 || a == b {
		t.Errorf("unexpected run ids %q %q", a, b)
	}
}
