package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chr1sbest/refetch/internal/resilience"
)

func TestCommandAction(t *testing.T) {
	tests := []struct {
		name      string
		action    CommandAction
		deps      []string
		want      string
		wantErr   string
		permanent bool
	}{
		{name: "trims output", action: CommandAction{Command: "printf '  hi \\n\\n'"}, want: "hi"},
		{name: "stderr captured", action: CommandAction{Command: "echo warn >&2; echo out"}, want: "warn\nout"},
		{name: "deps exported", action: CommandAction{Command: `echo "$REFETCH_DEPS"`}, deps: []string{"a", "b"}, want: "a\nb"},
		{name: "name exported", action: CommandAction{Name: "ctl", Command: `echo "$REFETCH_CONTROLLER"`}, want: "ctl"},
		{name: "failure keeps output", action: CommandAction{Command: "echo oops; exit 2"}, wantErr: "exit status 2\nOutput: oops"},
		{name: "missing binary is permanent", action: CommandAction{Command: "definitely-not-a-command-xyz"}, wantErr: "exit status 127", permanent: true},
		{name: "empty command", action: CommandAction{Command: "  "}, wantErr: "command is required", permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.action.Run(context.Background(), tt.deps)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("output = %q, want %q", got, tt.want)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
			if resilience.IsPermanentError(err) != tt.permanent {
				t.Errorf("IsPermanentError = %v, want %v", !tt.permanent, tt.permanent)
			}
		})
	}
}

func TestCommandActionTimeoutIsTransient(t *testing.T) {
	a := CommandAction{Command: "sleep 5", Timeout: 50 * time.Millisecond}

	start := time.Now()
	_, err := a.Run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !resilience.IsTransientError(err) {
		t.Error("timeouts must be retryable")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("command was not killed on timeout")
	}
}
