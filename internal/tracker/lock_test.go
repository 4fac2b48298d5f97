package tracker

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
)

func TestAcquireLockBlocksSecondAcquire(t *testing.T) {
	w := NewWriter(t.TempDir())

	release, err := w.AcquireLock("test-run")
	if err != nil {
		t.Fatalf("AcquireLock error: %v", err)
	}
	defer func() { _ = release() }()

	if _, err := w.AcquireLock("other-run"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release error: %v", err)
	}
	if err := release(); err != nil {
		t.Fatalf("second release must be a no-op, got %v", err)
	}

	again, err := w.AcquireLock("third-run")
	if err != nil {
		t.Fatalf("expected AcquireLock after release to succeed, got: %v", err)
	}
	_ = again()
}

func TestAcquireLockTakesOverStaleLock(t *testing.T) {
	w := NewWriter(t.TempDir())

	// PIDs are capped well below this on every supported platform.
	data, _ := json.Marshal(Lock{PID: 1 << 30, RunID: "dead"})
	if err := os.WriteFile(w.LockPath, data, 0644); err != nil {
		t.Fatalf("write stale lock: %v", err)
	}

	release, err := w.AcquireLock("live")
	if err != nil {
		t.Fatalf("expected stale lock takeover, got %v", err)
	}
	defer release()

	b, _ := os.ReadFile(w.LockPath)
	var l Lock
	if err := json.Unmarshal(b, &l); err != nil || l.RunID != "live" || l.PID != os.Getpid() {
		t.Errorf("unexpected lock content %s", b)
	}
}

func TestAcquireLockKeepsUnreadableLock(t *testing.T) {
	w := NewWriter(t.TempDir())
	if err := os.WriteFile(w.LockPath, []byte("garbage"), 0644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	if _, err := w.AcquireLock("x"); !errors.Is(err, ErrLockHeld) {
		t.Errorf("expected ErrLockHeld for an unreadable lock, got %v", err)
	}
}
