package resilience

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"syscall"
)

// PermanentError marks a failure that another attempt cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// TransientError marks a failure worth retrying even if its type would
// otherwise classify as permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsPermanentError reports whether a retry of the failed action is pointless.
// Explicit wrappers win, then context errors, then known error types.
// Anything unrecognized is treated as transient.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return true
	}
	var transErr *TransientError
	if errors.As(err, &transErr) {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return classify(err)
}

// IsTransientError is the ShouldRetry check used when a controller is told
// to stop retrying permanent failures.
func IsTransientError(err error) bool {
	return err != nil && !IsPermanentError(err)
}

func classify(err error) bool {
	// sh reports 126 for "not executable" and 127 for "not found"; running
	// the same command again gives the same answer.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return code == 126 || code == 127
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.Is(pathErr.Err, syscall.EACCES) ||
			errors.Is(pathErr.Err, syscall.EPERM) ||
			errors.Is(pathErr.Err, syscall.ENOENT) {
			return true
		}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EACCES, syscall.EPERM, syscall.ENOENT, syscall.ENOTDIR:
			return true
		}
	}

	return false
}
