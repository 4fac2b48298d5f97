package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
)

// Lock is the content of the lock file.
type Lock struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	RunID     string    `json:"run_id"`
}

var ErrLockHeld = errors.New("refetch lock is held")

// AcquireLock claims the state directory for this process. A lock left by a
// dead process is taken over once. The returned release is safe to call
// more than once.
func (w *Writer) AcquireLock(runID string) (func() error, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	if err := w.createLock(runID); err != nil {
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		holder, alive := w.lockHolder()
		if alive {
			return nil, fmt.Errorf("%w by pid %d (run_id=%s)", ErrLockHeld, holder.PID, holder.RunID)
		}
		if rmErr := os.Remove(w.LockPath); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("%w (stale lock not removable: %v)", ErrLockHeld, rmErr)
		}
		if err := w.createLock(runID); err != nil {
			if errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("%w (lock file exists)", ErrLockHeld)
			}
			return nil, err
		}
	}

	var once sync.Once
	var releaseErr error
	release := func() error {
		once.Do(func() { releaseErr = os.Remove(w.LockPath) })
		return releaseErr
	}
	return release, nil
}

// createLock writes the lock file exclusively (O_EXCL fails if it exists).
func (w *Writer) createLock(runID string) error {
	data, err := json.MarshalIndent(Lock{PID: os.Getpid(), StartedAt: time.Now(), RunID: runID}, "", "    ")
	if err != nil {
		return err
	}

	f, err := os.OpenFile(w.LockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(w.LockPath)
		return err
	}
	return nil
}

// lockHolder reads the current lock and reports whether its process lives.
// An unreadable lock counts as live so it is never removed blindly.
func (w *Writer) lockHolder() (Lock, bool) {
	b, err := os.ReadFile(w.LockPath)
	if err != nil {
		return Lock{}, !os.IsNotExist(err)
	}
	var l Lock
	if json.Unmarshal(b, &l) != nil || l.PID <= 0 {
		return l, true
	}
	return l, processAlive(l.PID)
}

func processAlive(pid int) bool {
	// On unix, signal 0 checks existence/permission.
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
