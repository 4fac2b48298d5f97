package resilience

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"testing"
)

func exitErr(t *testing.T, code int) error {
	t.Helper()
	err := exec.Command("sh", "-c", fmt.Sprintf("exit %d", code)).Run()
	if err == nil {
		t.Fatalf("expected exit status %d", code)
	}
	return err
}

func TestWrappers(t *testing.T) {
	cause := errors.New("upstream refused")

	for _, err := range []error{Permanent(cause), Transient(cause)} {
		if err.Error() != cause.Error() {
			t.Errorf("wrapper changed the message: %q", err.Error())
		}
		if !errors.Is(err, cause) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
	}

	if Permanent(nil) != nil || Transient(nil) != nil {
		t.Error("wrapping nil must stay nil")
	}
}

func TestIsPermanentError(t *testing.T) {
	notFound := exitErr(t, 127)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unclassified failure retries", errors.New("503 from upstream"), false},
		{"command exit 1 retries", exitErr(t, 1), false},
		{"command not executable", exitErr(t, 126), true},
		{"command not found", notFound, true},
		{"wrapped command not found", fmt.Errorf("command failed: %w", notFound), true},
		{"missing binary", exec.ErrNotFound, true},
		{"explicit permanent", Permanent(errors.New("bad config")), true},
		{"transient wins over classification", Transient(notFound), false},
		{"permanent wins over classification", Permanent(exitErr(t, 1)), true},
		{"cancelled run", context.Canceled, true},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"unreadable file", &os.PathError{Op: "open", Path: "/etc/shadow", Err: syscall.EACCES}, true},
		{"missing file", &os.PathError{Op: "open", Path: "/nope", Err: syscall.ENOENT}, true},
		{"connection refused retries", syscall.ECONNREFUSED, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanentError(tt.err); got != tt.want {
				t.Errorf("IsPermanentError(%v) = %v, want %v", tt.err, got, tt.want)
			}
			if tt.err != nil && IsTransientError(tt.err) == tt.want {
				t.Errorf("IsTransientError(%v) must be the inverse", tt.err)
			}
		})
	}

	if IsTransientError(nil) {
		t.Error("nil is not a transient failure")
	}
}
