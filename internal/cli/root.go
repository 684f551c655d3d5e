package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mikematt33/qgate/internal/cache"
	"github.com/mikematt33/qgate/internal/collector"
	"github.com/mikematt33/qgate/internal/config"
	"github.com/mikematt33/qgate/internal/runlog"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// Version can be set via build flags: -ldflags "-X 'github.com/mikematt33/qgate/internal/cli.Version=v1.0.0'"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "qgate",
	Short: "Code-quality gate and safe refactor runner for Node.js projects",
	Long: `qgate captures code-quality metrics (lint, duplication, coverage, security,
tech debt and outdated dependencies) for a Node.js project, compares snapshots
against configurable regression thresholds, and runs refactoring commands inside
a git-backed safety net that rolls back on any failure.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Persistent flags
var (
	flagQuiet   bool
	flagVerbose bool
	flagProject string
	flagConfig  string
)

// newRunner builds the subprocess runner. Tests swap it for a scripted fake.
var newRunner = func() toolchain.Runner {
	return toolchain.NewExecRunner()
}

// env is the per-invocation state prepared by setup.
type env struct {
	cfg     *config.Config
	cfgPath string
	root    string // empty when no package.json was found
	log     *runlog.Logger
	runner  toolchain.Runner
}

var app *env

// ExitError carries a process exit code out of a command. A nil Err means
// the command already reported the failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitWith(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return models.ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return models.ExitPreflightFailure
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if app != nil {
		_ = app.log.Close()
	}

	var ee *ExitError
	if err != nil && !(errors.As(err, &ee) && ee.Err == nil) {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(ExitCode(err))
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Only print warnings, errors and results")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Print debug output")
	pf.StringVarP(&flagProject, "project", "C", "", "Project root (default: nearest directory with package.json)")
	pf.StringVar(&flagConfig, "config", "", "Config file (default: .qgate.yaml, then the user config)")
	rootCmd.MarkFlagsMutuallyExclusive("quiet", "verbose")
	_ = rootCmd.MarkPersistentFlagFilename("config", "yaml", "yml")
	_ = rootCmd.MarkPersistentFlagDirname("project")
}

// needsEnv reports whether a command works on a project.
func needsEnv(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", "__complete", "__completeNoDesc", "init":
		return false
	}
	return true
}

func setup(cmd *cobra.Command, args []string) error {
	if !needsEnv(cmd) {
		return nil
	}

	root, err := resolveRoot()
	if err != nil {
		return exitWith(models.ExitPreflightFailure, err)
	}

	cfg, cfgPath, err := config.Load(flagConfig, root)
	if err != nil {
		return exitWith(models.ExitIOError, err)
	}

	log := runlog.New(runlog.Options{
		Console: cmd.ErrOrStderr(),
		Quiet:   flagQuiet,
		Verbose: flagVerbose,
		NoColor: !isTerminal(os.Stderr),
	})
	if cfgPath != "" {
		log.Debug("Loaded config", zap.String("path", cfgPath))
	}

	app = &env{
		cfg:     cfg,
		cfgPath: cfgPath,
		root:    root,
		log:     log,
		runner:  newRunner(),
	}
	return nil
}

// resolveRoot honors --project, otherwise walks up from the working
// directory. A missing project root is not an error here; commands that
// need one report it.
func resolveRoot() (string, error) {
	if flagProject != "" {
		abs, err := filepath.Abs(flagProject)
		if err != nil {
			return "", fmt.Errorf("invalid --project: %w", err)
		}
		if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
			return "", fmt.Errorf("project directory %s does not exist", flagProject)
		}
		return abs, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	root, err := toolchain.FindProjectRoot(wd)
	if errors.Is(err, toolchain.ErrNoProjectRoot) {
		return "", nil
	}
	return root, err
}

// requireRoot returns the project root or an exit-1 error.
func (e *env) requireRoot() (string, error) {
	if e.root == "" {
		return "", exitWith(models.ExitPreflightFailure,
			fmt.Errorf("%w: run qgate inside a Node.js project or pass --project", toolchain.ErrNoProjectRoot))
	}
	return e.root, nil
}

// path resolves a project-relative path.
func (e *env) path(rel string) string {
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(e.root, rel)
}

// collector returns a collector with the snapshot cache attached when enabled.
func (e *env) collector() *collector.Collector {
	c := collector.New(e.runner, e.cfg, e.log)
	if !e.cfg.Cache.Enabled {
		return c
	}
	dir, err := cache.GetDefaultCachePath()
	if err != nil {
		e.log.Debug("Snapshot cache unavailable", zap.Error(err))
		return c
	}
	ch, err := cache.New(dir, e.cfg.Cache.TTL)
	if err != nil {
		e.log.Warn("Snapshot cache unavailable", zap.Error(err))
		return c
	}
	c.Cache = ch
	return c
}

func (e *env) showProgress() bool {
	return !e.log.Quiet() && isTerminal(os.Stderr)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
