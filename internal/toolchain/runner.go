package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var (
	// ErrToolUnavailable marks a binary that is not on PATH.
	ErrToolUnavailable = errors.New("tool unavailable")
	// ErrTimeout marks a subprocess that was killed after exceeding its budget.
	ErrTimeout = errors.New("timed out")
)

// waitDelay bounds how long Wait blocks on pipes held open by orphaned grandchildren
// after the process group has been killed.
const waitDelay = 2 * time.Second

// Command describes one subprocess invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Shell wraps a command line in the platform shell.
func Shell(line string) Command {
	if runtime.GOOS == "windows" {
		return Command{Name: "cmd", Args: []string{"/C", line}}
	}
	return Command{Name: "sh", Args: []string{"-c", line}}
}

// Script runs a script file with the platform shell.
func Script(path string) Command {
	if runtime.GOOS == "windows" {
		return Command{Name: "cmd", Args: []string{"/C", path}}
	}
	return Command{Name: "sh", Args: []string{path}}
}

// Result holds the captured output of a finished subprocess.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// OK reports whether the process exited zero.
func (r *Result) OK() bool {
	return r != nil && r.ExitCode == 0
}

// Combined joins stdout and stderr.
func (r *Result) Combined() string {
	if r == nil {
		return ""
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Tail returns the last n lines of the combined output, for error messages.
func (r *Result) Tail(n int) string {
	lines := strings.Split(strings.TrimRight(r.Combined(), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Runner executes external commands.
//
// A non-zero exit is not an error: the Result carries the exit code and the
// caller decides. Errors are reserved for ErrToolUnavailable, ErrTimeout,
// cancellation and failures to start the process.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// LookPath resolves a binary, wrapping ErrToolUnavailable when it is missing.
func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrToolUnavailable)
	}
	return path, nil
}

// Run starts the command in its own process group and waits for it.
// When the timeout expires the whole group is killed.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if _, err := r.LookPath(cmd.Name); err != nil {
		return nil, err
	}

	execCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(execCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	setupProcessGroup(c)
	c.Cancel = func() error { return killProcessGroup(c) }
	c.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}

	if err == nil {
		res.ExitCode = 0
		return res, nil
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return res, fmt.Errorf("%s after %s: %w", cmd.Name, cmd.Timeout, ErrTimeout)
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s: %w", cmd.Name, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	return res, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
}
