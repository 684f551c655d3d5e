// Package collector runs every analyzer against a project and assembles
// the resulting metrics snapshot.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mikematt33/qgate/internal/analysis"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/coverage"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/dependencies"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/duplication"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/lint"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/security"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/techdebt"
	"github.com/mikematt33/qgate/internal/cache"
	"github.com/mikematt33/qgate/internal/config"
	"github.com/mikematt33/qgate/internal/git"
	"github.com/mikematt33/qgate/internal/runlog"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// SkipByFlag is the skip reason recorded for sub-records disabled on the command line.
const SkipByFlag = "disabled by flag"

// versionedTools are stamped into every snapshot.
var versionedTools = []string{"node", "npm", "git"}

// Options selects what a single collection measures.
type Options struct {
	// Root is the project root. When empty it is found by walking up from
	// the working directory to the nearest package.json.
	Root             string
	Targets          []string
	SkipCoverage     bool
	SkipSecurity     bool
	SkipDependencies bool
	NoCache          bool
	// ShowProgress renders a progress bar on the collector's Progress writer.
	ShowProgress bool
}

// Collector owns the dependencies shared by every collection.
type Collector struct {
	Runner    toolchain.Runner
	Config    *config.Config
	Log       *runlog.Logger
	Cache     *cache.Cache // nil disables caching
	Analyzers []analysis.Analyzer
	Progress  io.Writer
	Now       func() time.Time
}

// DefaultAnalyzers returns the analyzers in the order they run.
func DefaultAnalyzers() []analysis.Analyzer {
	return []analysis.Analyzer{
		lint.New(),
		duplication.New(),
		coverage.New(),
		security.New(),
		techdebt.New(),
		dependencies.New(),
	}
}

// New creates a collector with the default analyzers.
func New(runner toolchain.Runner, cfg *config.Config, log *runlog.Logger) *Collector {
	if log == nil {
		log = runlog.Nop()
	}
	return &Collector{
		Runner:    runner,
		Config:    cfg,
		Log:       log,
		Analyzers: DefaultAnalyzers(),
		Progress:  os.Stderr,
		Now:       time.Now,
	}
}

// Collect measures the project and returns a snapshot. Individual analyzer
// failures are recorded as skipped sub-records; only a missing project root,
// a missing base tool or cancellation fail the collection.
func (c *Collector) Collect(ctx context.Context, opts Options) (*models.Snapshot, error) {
	root := opts.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		root = wd
	}
	root, err := toolchain.FindProjectRoot(root)
	if err != nil {
		return nil, err
	}

	targets := opts.Targets
	if len(targets) == 0 {
		targets = c.Config.Global.Targets
	}

	tc := toolchain.NewContext(c.Runner, root)
	if err := tc.Require(toolchain.BaseTools...); err != nil {
		return nil, fmt.Errorf("required tool missing: %w", err)
	}

	c.Log.Info("Collecting metrics", zap.String("root", root), zap.Strings("targets", targets))

	snap := &models.Snapshot{
		SchemaVersion: models.SchemaVersion,
		Timestamp:     c.Now().UTC(),
		Targets:       targets,
	}
	snap.Git = c.gitInfo(ctx, root)

	cacheKey := ""
	if c.cacheable(opts, snap.Git) {
		cacheKey = cache.MetricsKey(cache.MetricsScope{
			Root:             root,
			Commit:           snap.Git.Commit,
			Targets:          targets,
			Tools:            c.Config.Tools.Fingerprint(),
			SkipCoverage:     opts.SkipCoverage,
			SkipSecurity:     opts.SkipSecurity,
			SkipDependencies: opts.SkipDependencies,
		})
		entry, found, err := c.Cache.GetMetrics(cacheKey)
		if err != nil {
			c.Log.Warn("Ignoring unreadable cache entry", zap.Error(err))
		}
		if found {
			c.Log.Info("Using cached metrics", zap.String("commit", shortCommit(snap.Git.Commit)))
			snap.Metrics = entry.Metrics
			snap.ToolVersions = entry.ToolVersions
			if snap.ToolVersions == nil {
				snap.ToolVersions = map[string]string{}
			}
			return snap, nil
		}
	}

	acfg := analysis.Config{
		Targets:    targets,
		MetricsDir: c.Config.Global.MetricsDir,
		Tools:      c.Config.Tools,
	}

	failures, err := c.runAnalyzers(ctx, tc, acfg, opts, &snap.Metrics)
	if err != nil {
		return nil, err
	}

	for _, name := range versionedTools {
		tc.Version(ctx, name)
	}
	snap.ToolVersions = tc.Versions()

	if cacheKey != "" && failures == 0 {
		entry := &cache.MetricsEntry{Metrics: snap.Metrics, ToolVersions: snap.ToolVersions}
		if err := c.Cache.SetMetrics(cacheKey, entry); err != nil {
			c.Log.Warn("Failed to cache metrics", zap.Error(err))
		}
	}
	return snap, nil
}

func (c *Collector) runAnalyzers(ctx context.Context, tc *toolchain.Context, acfg analysis.Config, opts Options, m *models.Metrics) (int, error) {
	var bar *progressbar.ProgressBar
	if opts.ShowProgress && c.Progress != nil {
		bar = progressbar.NewOptions(len(c.Analyzers),
			progressbar.OptionSetWriter(c.Progress),
			progressbar.OptionSetDescription("Collecting metrics"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	failures := 0
	for _, az := range c.Analyzers {
		if err := ctx.Err(); err != nil {
			return failures, fmt.Errorf("collection cancelled: %w", err)
		}

		name := az.Name()
		if bar != nil {
			bar.Describe(name)
		}

		if skippedByFlag(name, opts) {
			az.Skip(m, SkipByFlag)
			c.Log.Debug("Skipping analyzer", zap.String("analyzer", name), zap.String("reason", SkipByFlag))
		} else {
			start := c.Now()
			c.Log.Debug("Running analyzer", zap.String("analyzer", name))
			if err := az.Analyze(ctx, tc, acfg, m); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return failures, fmt.Errorf("collection cancelled: %w", err)
				}
				failures++
				az.Skip(m, err.Error())
				c.Log.Warn(fmt.Sprintf("%s skipped: %v", name, err), zap.String("analyzer", name))
			} else {
				c.Log.Debug("Analyzer finished", zap.String("analyzer", name), zap.Duration("took", c.Now().Sub(start)))
			}
		}

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}
	return failures, nil
}

func (c *Collector) gitInfo(ctx context.Context, root string) models.GitInfo {
	client, err := git.NewClient(ctx, c.Runner, root)
	if err != nil {
		c.Log.Warn("Git information unavailable", zap.Error(err))
		return models.GitInfo{}
	}
	client.Exclude(c.Config.Global.MetricsDir, c.Config.Refactor.LogDir)

	info, err := client.Info(ctx)
	if err != nil {
		c.Log.Warn("Git information unavailable", zap.Error(err))
		return models.GitInfo{}
	}
	return info
}

// cacheable reports whether the commit alone identifies the measured content.
func (c *Collector) cacheable(opts Options, info models.GitInfo) bool {
	return c.Cache != nil && !opts.NoCache && c.Config.Cache.Enabled && info.Commit != "" && !info.Dirty
}

func skippedByFlag(name string, opts Options) bool {
	switch name {
	case "coverage":
		return opts.SkipCoverage
	case "security":
		return opts.SkipSecurity
	case "dependencies":
		return opts.SkipDependencies
	}
	return false
}

func shortCommit(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
