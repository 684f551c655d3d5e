// Package toolchaintest provides a scripted toolchain.Runner for tests.
package toolchaintest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mikematt33/qgate/internal/toolchain"
)

// Handler produces the outcome of a matched command.
type Handler func(cmd toolchain.Command) (*toolchain.Result, error)

type route struct {
	prefix  string
	handler Handler
}

// FakeRunner answers commands by command-line prefix. The first matching
// route wins; unmatched commands exit zero with no output.
type FakeRunner struct {
	mu      sync.Mutex
	routes  []route
	missing map[string]bool
	calls   []toolchain.Command
}

// NewFakeRunner returns an empty scripted runner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{missing: make(map[string]bool)}
}

// Missing marks binaries that LookPath and Run report as unavailable.
func (f *FakeRunner) Missing(names ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		f.missing[n] = true
	}
	return f
}

// On registers a handler for commands whose rendered line starts with prefix.
func (f *FakeRunner) On(prefix string, h Handler) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, route{prefix: prefix, handler: h})
	return f
}

// Stdout is a handler that exits with code and prints out.
func Stdout(code int, out string) Handler {
	return func(toolchain.Command) (*toolchain.Result, error) {
		return &toolchain.Result{Stdout: out, ExitCode: code}, nil
	}
}

// Fail is a handler that returns err.
func Fail(err error) Handler {
	return func(toolchain.Command) (*toolchain.Result, error) {
		return &toolchain.Result{ExitCode: -1}, err
	}
}

// LookPath implements toolchain.Runner.
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[name] {
		return "", fmt.Errorf("%s: %w", name, toolchain.ErrToolUnavailable)
	}
	return "/usr/bin/" + name, nil
}

// Run implements toolchain.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd toolchain.Command) (*toolchain.Result, error) {
	if _, err := f.LookPath(cmd.Name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var h Handler
	line := cmd.String()
	for _, r := range f.routes {
		if strings.HasPrefix(line, r.prefix) {
			h = r.handler
			break
		}
	}
	f.mu.Unlock()

	if h == nil {
		return &toolchain.Result{}, nil
	}
	return h(cmd)
}

// Calls returns the rendered command lines run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

// Ran reports whether any command line started with prefix.
func (f *FakeRunner) Ran(prefix string) bool {
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
