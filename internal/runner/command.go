package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chr1sbest/refetch/internal/resilience"
)

// DefaultCommandTimeout bounds a command that sets no timeout of its own.
const DefaultCommandTimeout = 5 * time.Minute

// CommandAction runs one shell command as a controller's action.
type CommandAction struct {
	Name    string
	Command string
	Timeout time.Duration
	// Shell defaults to "sh".
	Shell string
}

// Run executes the command with deps exported as REFETCH_DEPS (one per
// line) and returns its trimmed combined output.
//
// A timeout is reported as transient so a retry policy that stops on
// permanent failures still retries it. Exit codes 126 and 127 classify as
// permanent.
func (a CommandAction) Run(ctx context.Context, deps []string) (string, error) {
	if strings.TrimSpace(a.Command) == "" {
		return "", resilience.Permanent(errors.New("command is required"))
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	shell := a.Shell
	if shell == "" {
		shell = "sh"
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, shell, "-c", a.Command)
	cmd.Env = append(os.Environ(),
		"REFETCH_CONTROLLER="+a.Name,
		"REFETCH_DEPS="+strings.Join(deps, "\n"),
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// Children of the shell can hold the output pipe open after it is killed.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	output := strings.TrimSpace(out.String())
	if err == nil {
		return output, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", resilience.Transient(fmt.Errorf("command timed out after %v", timeout))
	}
	if output != "" {
		return "", fmt.Errorf("command failed: %w\nOutput: %s", err, output)
	}
	return "", fmt.Errorf("command failed: %w", err)
}
