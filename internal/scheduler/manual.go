package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance instead of wall time. Callbacks run
// synchronously on the goroutine calling Advance, in due order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers map[int]*manualTimer
}

// NewManual creates a Manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:    start,
		timers: make(map[int]*manualTimer),
	}
}

type manualTimer struct {
	m      *Manual
	id     int
	due    time.Time
	period time.Duration
	f      func()
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, ok := t.m.timers[t.id]; !ok {
		return false
	}
	delete(t.m.timers, t.id)
	return true
}

// AfterFunc arms f to run once d after the current manual time.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	return m.arm(d, 0, f)
}

// Every arms f to run each d, starting d after the current manual time.
func (m *Manual) Every(d time.Duration, f func()) Timer {
	if d <= 0 {
		panic("scheduler: non-positive interval")
	}
	return m.arm(d, d, f)
}

func (m *Manual) arm(d, period time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, id: m.seq, due: m.now.Add(d), period: period, f: f}
	m.timers[t.id] = t
	return t
}

// Now returns the manual clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward by d, firing every timer that falls due.
// Timers armed by callbacks fire in the same call if they fall inside the
// window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t, ok := m.popDue(target)
		if !ok {
			break
		}
		t.f()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// popDue removes (or reschedules) the earliest timer due at or before target.
func (m *Manual) popDue(target time.Time) (*manualTimer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.due.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil, false
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})

	t := due[0]
	m.now = t.due
	if t.period > 0 {
		t.due = t.due.Add(t.period)
	} else {
		delete(m.timers, t.id)
	}
	return t, true
}
