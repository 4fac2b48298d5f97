// Package scheduler provides the delayed-callback capability used by the
// retry and interval controllers. Controllers own the timers they arm and
// stop the previous handle before arming a new one.
package scheduler

import (
	"sync"
	"time"
)

// Timer is a handle to an armed callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call stopped an
	// active timer; false means it already fired or was stopped.
	Stop() bool
}

// Scheduler arms one-shot and repeating callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Every(d time.Duration, f func()) Timer
}

// System returns a Scheduler backed by the runtime timers.
func System() Scheduler {
	return systemScheduler{}
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (systemScheduler) Every(d time.Duration, f func()) Timer {
	t := &ticker{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go t.run(f)
	return t
}

type ticker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *ticker) run(f func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			// Stop may race with a tick that was already delivered.
			select {
			case <-t.done:
				return
			default:
			}
			f()
		}
	}
}

func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}
