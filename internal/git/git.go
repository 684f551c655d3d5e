package git

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
)

const gitTimeout = 2 * time.Minute

// Status is the parsed output of git status --porcelain.
type Status struct {
	Modified   []string
	Untracked  []string
	Deleted    []string
	Added      []string
	Renamed    []string
	HasChanges bool
}

// Client runs git against a single working tree.
// SECURITY: repoPath must be a validated, trusted path.
type Client struct {
	runner   toolchain.Runner
	repoPath string
	excludes []string
}

// NewClient verifies that git is installed and that repoPath is inside a work tree.
func NewClient(ctx context.Context, runner toolchain.Runner, repoPath string) (*Client, error) {
	if _, err := runner.LookPath("git"); err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	c := &Client{runner: runner, repoPath: repoPath}
	out, err := c.run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", repoPath, err)
	}
	if out != "true" {
		return nil, fmt.Errorf("%s is not inside a git work tree", repoPath)
	}
	return c, nil
}

// Exclude hides paths from status and protects them from Clean.
// The metrics directory lives inside the working tree and must survive a rollback.
// Paths outside the working tree are dropped: git rejects them as pathspecs.
func (c *Client) Exclude(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			rel, err := filepath.Rel(c.repoPath, p)
			if err != nil {
				continue
			}
			p = rel
		}
		p = filepath.Clean(p)
		if p == "." || p == ".." || strings.HasPrefix(p, ".."+string(filepath.Separator)) {
			continue
		}
		c.excludes = append(c.excludes, p)
	}
}

// RepoPath returns the working tree this client operates on.
func (c *Client) RepoPath() string {
	return c.repoPath
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	out, err := c.runRaw(ctx, args...)
	return strings.TrimSpace(out), err
}

// runRaw keeps leading whitespace, which is significant in porcelain output.
func (c *Client) runRaw(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", c.repoPath}, args...)
	res, err := c.runner.Run(ctx, toolchain.Command{Name: "git", Args: full, Timeout: gitTimeout})
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	if !res.OK() {
		return "", fmt.Errorf("git %s exited %d: %s", strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.Tail(5)))
	}
	return res.Stdout, nil
}

// GetStatus returns the git status of the repository.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	args := []string{"status", "--porcelain"}
	if len(c.excludes) > 0 {
		args = append(args, "--", ".")
		for _, p := range c.excludes {
			args = append(args, ":(exclude)"+p)
		}
	}
	out, err := c.runRaw(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseStatus(out)
}

func parseStatus(output string) (*Status, error) {
	status := &Status{}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 3 {
			continue
		}

		code := line[0:2]
		path := line[3:]

		// XY where X=index, Y=working tree
		switch {
		case code == "??":
			status.Untracked = append(status.Untracked, path)
		case code == "A " || code == "AM":
			status.Added = append(status.Added, path)
		case code == "D " || code == " D":
			status.Deleted = append(status.Deleted, path)
		case strings.HasPrefix(code, "R"):
			status.Renamed = append(status.Renamed, path)
		default:
			status.Modified = append(status.Modified, path)
		}
		status.HasChanges = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}
	return status, nil
}

// IsClean reports whether the tree has no tracked or untracked changes.
func (c *Client) IsClean(ctx context.Context) (bool, error) {
	status, err := c.GetStatus(ctx)
	if err != nil {
		return false, err
	}
	return !status.HasChanges, nil
}

// CurrentBranch returns the checked out branch, or "HEAD" when detached.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// Head returns the full commit hash of HEAD.
func (c *Client) Head(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "HEAD")
}

// Info collects commit, branch and dirty flag for a snapshot.
func (c *Client) Info(ctx context.Context) (models.GitInfo, error) {
	var info models.GitInfo

	commit, err := c.Head(ctx)
	if err != nil {
		return info, err
	}
	branch, err := c.CurrentBranch(ctx)
	if err != nil {
		return info, err
	}
	clean, err := c.IsClean(ctx)
	if err != nil {
		return info, err
	}

	info.Commit = commit
	info.Branch = branch
	info.Dirty = !clean
	return info, nil
}

// CreateBranch creates a branch at HEAD without checking it out.
func (c *Client) CreateBranch(ctx context.Context, name string) error {
	_, err := c.run(ctx, "branch", name)
	return err
}

// DeleteBranch force-deletes a local branch.
func (c *Client) DeleteBranch(ctx context.Context, name string) error {
	_, err := c.run(ctx, "branch", "-D", name)
	return err
}

// BranchExists reports whether a local branch exists.
func (c *Client) BranchExists(ctx context.Context, name string) bool {
	_, err := c.run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// ResetHard resets the index and working tree, optionally to ref.
func (c *Client) ResetHard(ctx context.Context, ref string) error {
	args := []string{"reset", "--hard"}
	if ref != "" {
		args = append(args, ref)
	}
	_, err := c.run(ctx, args...)
	return err
}

// Clean removes untracked files and directories.
func (c *Client) Clean(ctx context.Context) error {
	args := []string{"clean", "-fd"}
	for _, p := range c.excludes {
		args = append(args, "-e", p)
	}
	_, err := c.run(ctx, args...)
	return err
}

// Checkout switches to ref.
func (c *Client) Checkout(ctx context.Context, ref string) error {
	_, err := c.run(ctx, "checkout", ref)
	return err
}

// ListBranches lists local branches matching a for-each-ref pattern.
func (c *Client) ListBranches(ctx context.Context, pattern string) ([]string, error) {
	out, err := c.run(ctx, "for-each-ref", "--format=%(refname:short)", "refs/heads/"+pattern)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// GetBranchTimestamp returns the commit time of the branch tip.
func (c *Client) GetBranchTimestamp(ctx context.Context, branch string) (time.Time, error) {
	out, err := c.run(ctx, "log", "-1", "--format=%ct", branch)
	if err != nil {
		return time.Time{}, err
	}
	var sec int64
	if _, err := fmt.Sscanf(out, "%d", &sec); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", out, err)
	}
	return time.Unix(sec, 0), nil
}
