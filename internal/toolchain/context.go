package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNoProjectRoot is returned when no package.json is found above the start directory.
var ErrNoProjectRoot = errors.New("project root not found")

// BaseTools are required for any metrics collection.
var BaseTools = []string{"node", "npm"}

const versionTimeout = 15 * time.Second

// Context is the per-run tool context. Availability checks and version
// probes are memoized for the lifetime of the run and never shared
// between runs.
type Context struct {
	Runner Runner
	Root   string

	mu        sync.Mutex
	available map[string]error
	versions  map[string]string
}

// NewContext creates a tool context rooted at the project directory.
func NewContext(runner Runner, root string) *Context {
	return &Context{
		Runner:    runner,
		Root:      root,
		available: make(map[string]error),
		versions:  make(map[string]string),
	}
}

// Check reports whether a tool is on PATH, memoizing the answer.
func (c *Context) Check(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.available[name]; ok {
		return err
	}
	_, err := c.Runner.LookPath(name)
	c.available[name] = err
	return err
}

// Available is Check as a boolean.
func (c *Context) Available(name string) bool {
	return c.Check(name) == nil
}

// Require fails with ErrToolUnavailable for the first missing tool.
func (c *Context) Require(names ...string) error {
	for _, name := range names {
		if err := c.Check(name); err != nil {
			if errors.Is(err, ErrToolUnavailable) {
				return err
			}
			return fmt.Errorf("%s: %w", name, ErrToolUnavailable)
		}
	}
	return nil
}

// Version returns the first line of `<name> --version`, or "" if it cannot be determined.
func (c *Context) Version(ctx context.Context, name string) string {
	c.mu.Lock()
	if v, ok := c.versions[name]; ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	var version string
	if c.Available(name) {
		res, err := c.Run(ctx, Command{Name: name, Args: []string{"--version"}, Timeout: versionTimeout})
		if err == nil && res.OK() {
			version = strings.TrimSpace(strings.SplitN(res.Stdout, "\n", 2)[0])
		}
	}

	c.mu.Lock()
	c.versions[name] = version
	c.mu.Unlock()
	return version
}

// Versions returns a copy of every version probed so far, skipping unknown ones.
func (c *Context) Versions() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.versions))
	for k, v := range c.versions {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Run executes a command, defaulting its working directory to the project root.
func (c *Context) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Dir == "" {
		cmd.Dir = c.Root
	}
	return c.Runner.Run(ctx, cmd)
}

// Path resolves a project-relative path.
func (c *Context) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, rel)
}

// FindProjectRoot walks up from start to the first directory containing package.json.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}

	for {
		if info, err := os.Stat(filepath.Join(dir, "package.json")); err == nil && !info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no package.json above %s: %w", start, ErrNoProjectRoot)
		}
		dir = parent
	}
}
