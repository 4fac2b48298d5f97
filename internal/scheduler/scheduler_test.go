package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestManual_AfterFunc(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := 0
	m.AfterFunc(100*time.Millisecond, func() { fired++ })

	m.Advance(99 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired early")
	}
	m.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("expected 1 fire, got %d", fired)
	}
	m.Advance(time.Second)
	if fired != 1 {
		t.Errorf("one-shot timer fired again")
	}
	if m.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", m.Pending())
	}
}

func TestManual_Every(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := 0
	timer := m.Every(500*time.Millisecond, func() { fired++ })

	m.Advance(1600 * time.Millisecond)
	if fired != 3 {
		t.Fatalf("expected 3 ticks, got %d", fired)
	}
	if !timer.Stop() {
		t.Error("expected Stop to report an active timer")
	}
	if timer.Stop() {
		t.Error("second Stop should report false")
	}
	m.Advance(time.Second)
	if fired != 3 {
		t.Errorf("stopped ticker fired")
	}
}

func TestManual_StopBeforeFire(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })
	timer.Stop()
	m.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestManual_CallbackArmsWithinWindow(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var order []string
	m.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "first")
		m.AfterFunc(100*time.Millisecond, func() {
			order = append(order, "second")
		})
	})

	m.Advance(250 * time.Millisecond)
	if len(order) != 2 {
		t.Fatalf("expected both callbacks, got %v", order)
	}
	if got := m.Now(); !got.Equal(time.Unix(0, 0).Add(250 * time.Millisecond)) {
		t.Errorf("unexpected clock %v", got)
	}
}

func TestSystem_AfterFuncAndEvery(t *testing.T) {
	s := System()

	done := make(chan struct{})
	s.AfterFunc(5*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AfterFunc did not fire")
	}

	var ticks atomic.Int32
	timer := s.Every(5*time.Millisecond, func() { ticks.Add(1) })
	deadline := time.Now().Add(time.Second)
	for ticks.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !timer.Stop() {
		t.Error("expected Stop to report an active ticker")
	}
	if ticks.Load() < 2 {
		t.Fatalf("expected at least 2 ticks, got %d", ticks.Load())
	}

	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() > after+1 {
		t.Errorf("ticker kept firing after Stop: %d -> %d", after, ticks.Load())
	}
}
