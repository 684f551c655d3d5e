// Package refactor runs a refactoring command under a git-backed safety net:
// a backup branch is taken first and any failure after that point restores
// the working tree from it.
package refactor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mikematt33/qgate/internal/config"
	"github.com/mikematt33/qgate/internal/git"
	"github.com/mikematt33/qgate/internal/runlog"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
	"go.uber.org/zap"
)

const (
	MinTimeout = time.Minute
	MaxTimeout = 60 * time.Minute

	// PostRefactorFile is written into the metrics directory by the Metrics phase.
	PostRefactorFile = "post-refactor.json"

	rollbackTimeout = 5 * time.Minute
)

// GitClient is the subset of git the executor mutates the tree with.
type GitClient interface {
	GetStatus(ctx context.Context) (*git.Status, error)
	IsClean(ctx context.Context) (bool, error)
	CurrentBranch(ctx context.Context) (string, error)
	Head(ctx context.Context) (string, error)
	CreateBranch(ctx context.Context, name string) error
	DeleteBranch(ctx context.Context, name string) error
	ResetHard(ctx context.Context, ref string) error
	Clean(ctx context.Context) error
	Checkout(ctx context.Context, ref string) error
}

// GateRequest is handed to the MetricsGate after validation passed.
type GateRequest struct {
	BaselinePath string
	OutputPath   string
	Thresholds   models.Thresholds
	Strict       bool
}

// MetricsGate captures a fresh snapshot and compares it with the baseline.
type MetricsGate func(ctx context.Context, req GateRequest) (*models.ComparisonResult, error)

// Options describe one refactor run.
type Options struct {
	Description  string
	Command      string
	ScriptPath   string
	Timeout      time.Duration // zero selects the configured timeout
	SkipTests    bool
	SkipMetrics  bool
	KeepBackup   bool
	Force        bool
	DryRun       bool
	BaselinePath string
	Thresholds   models.Thresholds
	Strict       bool
}

// Executor drives the refactor state machine.
type Executor struct {
	Git        GitClient
	Tools      *toolchain.Context
	Gates      *Gates
	Metrics    MetricsGate
	Confirm    Confirmer // nil means no interactive terminal
	Log        *runlog.Logger
	Config     config.RefactorConfig
	MetricsDir string
	Now        func() time.Time
	NewID      func() string
}

// NewExecutor wires an executor with the default clock and id source.
func NewExecutor(gitClient GitClient, tc *toolchain.Context, cfg *config.Config, metrics MetricsGate, log *runlog.Logger) *Executor {
	if log == nil {
		log = runlog.Nop()
	}
	return &Executor{
		Git:        gitClient,
		Tools:      tc,
		Gates:      NewGates(tc, cfg.Refactor),
		Metrics:    metrics,
		Log:        log,
		Config:     cfg.Refactor,
		MetricsDir: cfg.Global.MetricsDir,
		Now:        time.Now,
		NewID:      uuid.NewString,
	}
}

// runState is what phases share during one Execute call.
type runState struct {
	run            *models.RefactorRun
	opts           Options
	timeout        time.Duration
	originalBranch string
	originalHead   string
}

// errStop ends a run successfully before any mutation (dry run).
var errStop = errors.New("stop")

// Execute runs every phase in order and always returns a populated run record.
func (e *Executor) Execute(ctx context.Context, opts Options) *models.RefactorRun {
	s := &runState{
		run: &models.RefactorRun{
			ID:          e.NewID(),
			Description: opts.Description,
			StartedAt:   e.Now(),
			Phase:       models.PhaseInit,
			DryRun:      opts.DryRun,
		},
		opts: opts,
	}

	steps := map[models.Phase]func(context.Context, *runState) error{
		models.PhaseInit:       e.initPhase,
		models.PhasePreFlight:  e.preFlight,
		models.PhaseBackup:     e.backup,
		models.PhaseRefactor:   e.refactor,
		models.PhaseValidation: e.validate,
		models.PhaseMetrics:    e.metrics,
		models.PhaseComplete:   e.complete,
	}

	for phase := models.PhaseInit; ; {
		s.run.Phase = phase
		e.Log.Phase(string(phase))

		err := steps[phase](ctx, s)
		if errors.Is(err, errStop) {
			e.succeed(s)
			break
		}
		if err != nil {
			e.fail(ctx, s, err)
			break
		}
		s.run.CompletedPhases = append(s.run.CompletedPhases, phase)

		n, ok := next[phase]
		if !ok {
			e.succeed(s)
			break
		}
		phase = n
	}

	s.run.FinishedAt = e.Now()
	s.run.Duration = s.run.FinishedAt.Sub(s.run.StartedAt).Round(time.Millisecond).String()
	s.run.LogPath = e.Log.Path()
	e.Log.Info("Run finished",
		zap.String("outcome", string(s.run.Outcome)),
		zap.Int("exit_code", s.run.ExitCode),
		zap.String("duration", s.run.Duration))
	return s.run
}

func (e *Executor) initPhase(ctx context.Context, s *runState) error {
	opts := s.opts
	hasCmd := strings.TrimSpace(opts.Command) != ""
	hasScript := strings.TrimSpace(opts.ScriptPath) != ""
	if hasCmd == hasScript {
		return phaseErr(models.PhaseInit, models.CategoryPrecondition, "exactly one of a command or a script path is required")
	}
	if hasScript {
		if _, err := os.Stat(e.Tools.Path(opts.ScriptPath)); err != nil {
			return phaseErr(models.PhaseInit, models.CategoryPrecondition, "script not found: %w", err)
		}
	}

	s.timeout = opts.Timeout
	if s.timeout == 0 {
		s.timeout = time.Duration(e.Config.TimeoutMinutes) * time.Minute
	}
	if s.timeout < MinTimeout || s.timeout > MaxTimeout {
		return phaseErr(models.PhaseInit, models.CategoryPrecondition, "timeout must be between %s and %s, got %s", MinTimeout, MaxTimeout, s.timeout)
	}

	logPath := e.Tools.Path(filepath.Join(e.Config.LogDir,
		fmt.Sprintf("refactor-%s-%s.log", s.run.StartedAt.Format("20060102-150405"), shortID(s.run.ID))))
	if err := e.Log.OpenFile(logPath, s.run.ID); err != nil {
		e.Log.Warn("Continuing without a run log", zap.Error(err))
	}
	e.Log.Info("Safe refactor started",
		zap.String("description", opts.Description),
		zap.String("command", e.describeCommand(opts)),
		zap.Duration("timeout", s.timeout))

	if opts.DryRun {
		e.logPlan(s)
		return errStop
	}

	if !opts.Force {
		if e.Confirm == nil {
			return phaseErr(models.PhaseInit, models.CategoryPrecondition, "%w", ErrNotInteractive)
		}
		ok, err := e.Confirm.Confirm("Run safe refactor?",
			fmt.Sprintf("%s\n\nCommand: %s", orDefault(opts.Description, "(no description)"), e.describeCommand(opts)))
		if err != nil {
			return phaseErr(models.PhaseInit, models.CategoryPrecondition, "confirmation failed: %w", err)
		}
		if !ok {
			return phaseErr(models.PhaseInit, models.CategoryPrecondition, "cancelled by user")
		}
	}
	return nil
}

func (e *Executor) logPlan(s *runState) {
	e.Log.Info("Dry run: no changes will be made")
	for _, p := range Phases()[1:] {
		detail := ""
		switch p {
		case models.PhasePreFlight:
			detail = "require a clean tree"
			if !s.opts.SkipMetrics {
				detail += ", baseline " + s.opts.BaselinePath
			}
			if !s.opts.SkipTests {
				detail += ", run `" + e.Config.TestCommand + "`"
			}
		case models.PhaseBackup:
			detail = "create " + git.BackupBranchName(e.Config.BackupPrefix, s.run.StartedAt, s.run.ID)
		case models.PhaseRefactor:
			detail = fmt.Sprintf("run %s (timeout %s)", e.describeCommand(s.opts), s.timeout)
		case models.PhaseValidation:
			var gates []string
			for _, g := range []GateType{GateLint, GateTypecheck, GateTest} {
				if g == GateTest && s.opts.SkipTests {
					continue
				}
				if cmd := e.Gates.command(g); cmd != "" {
					gates = append(gates, "`"+cmd+"`")
				}
			}
			detail = "run " + orDefault(strings.Join(gates, ", "), "nothing")
		case models.PhaseMetrics:
			detail = "compare against " + s.opts.BaselinePath
			if s.opts.SkipMetrics {
				detail = "skipped"
			}
		case models.PhaseComplete:
			detail = "delete the backup branch"
			if s.opts.KeepBackup {
				detail = "keep the backup branch"
			}
		}
		e.Log.Info(fmt.Sprintf("  %-10s %s", p, detail))
	}
}

func (e *Executor) preFlight(ctx context.Context, s *runState) error {
	status, err := e.Git.GetStatus(ctx)
	if err != nil {
		return phaseErr(models.PhasePreFlight, models.CategoryToolUnavailable, "failed to read git status: %w", err)
	}
	if status.HasChanges {
		n := len(status.Modified) + len(status.Added) + len(status.Deleted) + len(status.Renamed) + len(status.Untracked)
		return phaseErr(models.PhasePreFlight, models.CategoryPrecondition,
			"working tree has %d uncommitted change(s); commit or stash them first", n)
	}
	e.Log.Success("Working tree is clean")

	if !s.opts.SkipMetrics {
		if _, err := os.Stat(e.Tools.Path(s.opts.BaselinePath)); err != nil {
			return phaseErr(models.PhasePreFlight, models.CategoryPrecondition,
				"baseline %s not found; run `qgate measure --baseline` first", s.opts.BaselinePath)
		}
		e.Log.Success("Baseline found", zap.String("path", s.opts.BaselinePath))
	}

	if !s.opts.SkipTests {
		e.Log.Info("Running test suite before any change")
		res := e.Gates.Run(ctx, GateTest)
		if !res.Passed {
			e.Log.Debug("Test output", zap.String("output", tail(res.Output, 40)))
			return &PhaseError{Phase: models.PhasePreFlight, Category: models.CategoryPrecondition,
				Err: fmt.Errorf("tests fail before refactoring: %w", res.Err)}
		}
		e.Log.Success("Tests pass", zap.Duration("took", res.Duration))
	}
	return nil
}

func (e *Executor) backup(ctx context.Context, s *runState) error {
	branch, err := e.Git.CurrentBranch(ctx)
	if err != nil {
		return phaseErr(models.PhaseBackup, models.CategoryToolExecutionFailure, "failed to read current branch: %w", err)
	}
	head, err := e.Git.Head(ctx)
	if err != nil {
		return phaseErr(models.PhaseBackup, models.CategoryToolExecutionFailure, "failed to read HEAD: %w", err)
	}
	s.originalBranch, s.originalHead = branch, head

	name := git.BackupBranchName(e.Config.BackupPrefix, s.run.StartedAt, s.run.ID)
	if err := e.Git.CreateBranch(ctx, name); err != nil {
		return phaseErr(models.PhaseBackup, models.CategoryToolExecutionFailure, "failed to create backup branch: %w", err)
	}
	s.run.BackupBranch = name
	e.Log.Success("Backup branch created", zap.String("branch", name), zap.String("head", head))
	return nil
}

func (e *Executor) refactor(ctx context.Context, s *runState) error {
	var cmd toolchain.Command
	if s.opts.ScriptPath != "" {
		cmd = toolchain.Script(s.opts.ScriptPath)
	} else {
		cmd = toolchain.Shell(s.opts.Command)
	}
	cmd.Timeout = s.timeout

	e.Log.Info("Running refactor", zap.String("command", e.describeCommand(s.opts)))
	res, err := e.Tools.Run(ctx, cmd)
	if res != nil {
		e.Log.Debug("Refactor output", zap.String("output", tail(res.Combined(), 40)))
	}
	switch {
	case errors.Is(err, toolchain.ErrTimeout):
		return &PhaseError{Phase: models.PhaseRefactor, Category: models.CategoryTimeout, Err: err}
	case err != nil:
		return &PhaseError{Phase: models.PhaseRefactor, Category: models.CategoryToolExecutionFailure, Err: err}
	case !res.OK():
		return phaseErr(models.PhaseRefactor, models.CategoryToolExecutionFailure,
			"refactor command exited %d: %s", res.ExitCode, strings.TrimSpace(res.Tail(3)))
	}
	e.Log.Success("Refactor command finished", zap.Duration("took", res.Duration))
	return nil
}

func (e *Executor) validate(ctx context.Context, s *runState) error {
	results, ok := e.Gates.RunAll(ctx, GateOptions{SkipTests: s.opts.SkipTests, FailFast: true})
	for _, r := range results {
		switch {
		case r.Skipped:
			e.Log.Debug("Gate skipped", zap.String("gate", string(r.Gate)))
		case r.Passed:
			e.Log.Success(fmt.Sprintf("%s passed", r.Gate), zap.Duration("took", r.Duration))
		}
	}
	if ok {
		return nil
	}

	failed := FirstFailure(results)
	e.Log.Debug("Gate output", zap.String("gate", string(failed.Gate)), zap.String("output", tail(failed.Output, 40)))
	cat := models.CategoryGate
	if failed.TimedOut() {
		cat = models.CategoryTimeout
	}
	return &PhaseError{Phase: models.PhaseValidation, Category: cat, Err: failed.Err}
}

func (e *Executor) metrics(ctx context.Context, s *runState) error {
	if s.opts.SkipMetrics {
		e.Log.Info("Metrics gate skipped")
		return nil
	}
	if e.Metrics == nil {
		return phaseErr(models.PhaseMetrics, models.CategoryToolUnavailable, "no metrics gate configured")
	}

	result, err := e.Metrics(ctx, GateRequest{
		BaselinePath: s.opts.BaselinePath,
		OutputPath:   filepath.Join(e.MetricsDir, PostRefactorFile),
		Thresholds:   s.opts.Thresholds,
		Strict:       s.opts.Strict,
	})
	if err != nil {
		return &PhaseError{Phase: models.PhaseMetrics, Category: models.CategoryToolExecutionFailure, Err: err}
	}
	s.run.Comparison = result

	for _, name := range result.Names() {
		m := result.Metrics[name]
		if m.Status != models.StatusPass {
			e.Log.Warn(fmt.Sprintf("%s %s (%s)", name, m.Status, m.FormattedDelta))
		}
	}
	if result.Overall == models.StatusFail {
		return phaseErr(models.PhaseMetrics, models.CategoryGate,
			"metrics gate failed: %d metric(s) regressed", result.Count(models.StatusFail)+strictWarnings(result))
	}
	e.Log.Success(fmt.Sprintf("Metrics gate %s", result.Overall))
	return nil
}

func strictWarnings(r *models.ComparisonResult) int {
	if !r.Strict {
		return 0
	}
	return r.Count(models.StatusWarn)
}

func (e *Executor) complete(ctx context.Context, s *runState) error {
	e.releaseBackup(ctx, s)
	return nil
}

// releaseBackup deletes the backup branch unless it was requested to be kept.
func (e *Executor) releaseBackup(ctx context.Context, s *runState) {
	if s.run.BackupBranch == "" {
		return
	}
	if s.opts.KeepBackup || e.Config.KeepBackup {
		s.run.BackupKept = true
		e.Log.Info("Keeping backup branch", zap.String("branch", s.run.BackupBranch))
		return
	}
	if err := e.Git.DeleteBranch(ctx, s.run.BackupBranch); err != nil {
		s.run.BackupKept = true
		e.Log.Warn("Failed to delete backup branch", zap.String("branch", s.run.BackupBranch), zap.Error(err))
		return
	}
	e.Log.Debug("Backup branch deleted", zap.String("branch", s.run.BackupBranch))
}

func (e *Executor) succeed(s *runState) {
	s.run.Success = true
	s.run.Outcome = models.OutcomeSucceeded
	s.run.ExitCode = models.ExitSuccess
	if s.opts.DryRun {
		e.Log.Success("Dry run complete")
		return
	}
	e.Log.Success("Refactor completed successfully")
}

func (e *Executor) fail(ctx context.Context, s *runState, err error) {
	phase := s.run.Phase
	cat := models.CategoryToolExecutionFailure
	var pe *PhaseError
	if errors.As(err, &pe) {
		phase = pe.Phase
		cat = pe.Category
	}
	s.run.Phase = phase
	s.run.Category = cat
	s.run.Error = err.Error()
	e.Log.Error(err.Error(), zap.String("category", string(cat)))

	if !mutates(phase) {
		s.run.Outcome = models.OutcomeAborted
		s.run.ExitCode = models.ExitPreflightFailure
		e.Log.Warn("Aborted before any change; nothing to roll back")
		return
	}

	// The run context may already be cancelled; restoring the tree must still happen.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	s.run.RollbackDone = true
	if rbErr := e.rollback(rctx, s); rbErr != nil {
		s.run.Outcome = models.OutcomeRollbackFailed
		s.run.RollbackFailed = true
		s.run.Category = models.CategoryRollback
		s.run.ExitCode = models.ExitFatal
		s.run.Error = fmt.Sprintf("%s; rollback failed: %v", s.run.Error, rbErr)
		if s.run.BackupBranch != "" {
			s.run.BackupKept = true
			e.Log.Error(fmt.Sprintf("Rollback failed. Restore manually with `git checkout %s && git reset --hard %s`",
				orDefault(s.originalBranch, "<branch>"), s.run.BackupBranch), zap.Error(rbErr))
		} else {
			e.Log.Error("Rollback failed. Restore manually with `git reset --hard "+s.originalHead+"`", zap.Error(rbErr))
		}
		return
	}

	s.run.Outcome = models.OutcomeRolledBack
	s.run.ExitCode = models.ExitRolledBack
	e.Log.Success("Rollback complete; working tree restored")
	e.releaseBackup(rctx, s)
}

// rollback restores the tree to the backup branch, or to the recorded HEAD
// when the backup was never created. Every step is attempted.
func (e *Executor) rollback(ctx context.Context, s *runState) error {
	e.Log.SetPhase("Rollback")
	e.Log.Warn("Rolling back")

	var errs []error
	if err := e.Git.ResetHard(ctx, ""); err != nil {
		errs = append(errs, fmt.Errorf("reset: %w", err))
	}
	if err := e.Git.Clean(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clean: %w", err))
	}

	if s.originalBranch != "" && s.originalBranch != "HEAD" {
		current, err := e.Git.CurrentBranch(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("current branch: %w", err))
		} else if current != s.originalBranch {
			if err := e.Git.Checkout(ctx, s.originalBranch); err != nil {
				errs = append(errs, fmt.Errorf("checkout %s: %w", s.originalBranch, err))
			}
		}
	}

	target := s.run.BackupBranch
	if target == "" {
		target = s.originalHead
	}
	if target != "" {
		if err := e.Git.ResetHard(ctx, target); err != nil {
			errs = append(errs, fmt.Errorf("reset to %s: %w", target, err))
		}
	}

	clean, err := e.Git.IsClean(ctx)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("verify: %w", err))
	case !clean:
		errs = append(errs, errors.New("working tree is still dirty after rollback"))
	}
	return errors.Join(errs...)
}

func (e *Executor) describeCommand(opts Options) string {
	if opts.ScriptPath != "" {
		return "script " + opts.ScriptPath
	}
	return "`" + opts.Command + "`"
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func tail(s string, lines int) string {
	parts := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, "\n")
}
