package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/mikematt33/qgate/internal/collector"
	"github.com/mikematt33/qgate/internal/git"
	"github.com/mikematt33/qgate/internal/refactor"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/baseline"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/spf13/cobra"
)

var refactorCmd = &cobra.Command{
	Use:   "refactor",
	Short: "Run a refactoring command with automatic rollback",
	Long: `Run a refactoring command or script inside a git-backed safety net.

The run goes through fixed phases: pre-flight checks (clean tree, baseline,
passing tests), a backup branch, the refactor itself under a hard timeout,
validation (lint, typecheck, tests) and a metrics gate against the baseline.
Any failure after the backup resets the working tree to the backup.

Exit codes: 0 success, 1 pre-flight failure, 5 rolled back, 6 rollback failed
(the backup branch is kept for manual recovery).`,
	Example: `  qgate refactor --command "npx eslint --fix src" -d "autofix lint"
  qgate refactor --script scripts/codemod.sh --timeout 30 --keep-backup
  qgate refactor -c "npx prettier --write src" --skip-metrics --force
  qgate refactor -c "npm run codemod" --dry-run`,
	Args: cobra.NoArgs,
	RunE: runRefactor,
}

var refactorCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stale refactor backup branches",
	Long: `Delete backup branches created by 'qgate refactor' that are older than the
retention period. The age comes from the timestamp in the branch name, or the
branch's last commit when the name carries none.`,
	Example: `  qgate refactor cleanup
  qgate refactor cleanup --retention-days 1 --dry-run`,
	Args: cobra.NoArgs,
	RunE: runRefactorCleanup,
}

var (
	flagRefactorCommand     string
	flagRefactorScript      string
	flagRefactorDescription string
	flagRefactorTimeout     int
	flagRefactorBaseline    string
	flagSkipTests           bool
	flagSkipMetrics         bool
	flagKeepBackup          bool
	flagForce               bool
	flagDryRun              bool
	flagRetentionDays       int
)

func init() {
	rootCmd.AddCommand(refactorCmd)
	refactorCmd.AddCommand(refactorCleanupCmd)

	f := refactorCmd.Flags()
	f.StringVarP(&flagRefactorCommand, "command", "c", "", "Shell command that performs the refactor")
	f.StringVarP(&flagRefactorScript, "script", "s", "", "Script that performs the refactor (run with sh)")
	f.StringVarP(&flagRefactorDescription, "description", "d", "", "Description recorded in the run log")
	f.IntVar(&flagRefactorTimeout, "timeout", 0, "Refactor timeout in minutes, 1-60 (default: refactor.timeout_minutes)")
	f.StringVarP(&flagRefactorBaseline, "baseline", "b", "", "Baseline snapshot for the metrics gate (default: <metrics_dir>/baseline.json)")
	f.BoolVar(&flagSkipTests, "skip-tests", false, "Skip the test suite in pre-flight and validation")
	f.BoolVar(&flagSkipMetrics, "skip-metrics", false, "Skip the baseline check and the metrics gate")
	f.BoolVar(&flagKeepBackup, "keep-backup", false, "Keep the backup branch after the run")
	f.BoolVar(&flagForce, "force", false, "Do not ask for confirmation")
	f.BoolVar(&flagDryRun, "dry-run", false, "Print the plan without changing anything")
	f.BoolVar(&flagStrict, "strict", false, "Treat metric warnings as failures")
	refactorCmd.MarkFlagsMutuallyExclusive("command", "script")
	refactorCmd.MarkFlagsOneRequired("command", "script")
	_ = refactorCmd.MarkFlagFilename("script", "sh")
	_ = refactorCmd.MarkFlagFilename("baseline", "json")

	refactorCleanupCmd.Flags().IntVar(&flagRetentionDays, "retention-days", 7, "Delete backups older than this many days")
	refactorCleanupCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "List the branches that would be deleted")
}

// metricsGate captures a post-refactor snapshot, bypassing the cache, and
// compares it with the baseline.
func metricsGate(root string) refactor.MetricsGate {
	return func(ctx context.Context, req refactor.GateRequest) (*models.ComparisonResult, error) {
		output := app.path(req.OutputPath)
		snap, err := app.collector().Collect(ctx, collector.Options{
			Root:         root,
			SkipCoverage: flagSkipTests,
			NoCache:      true,
		})
		if err != nil {
			return nil, err
		}
		if err := baseline.Save(snap, output); err != nil {
			return nil, err
		}
		before, err := baseline.Load(app.path(req.BaselinePath))
		if err != nil {
			return nil, err
		}
		return baseline.Compare(before, snap, baseline.CompareOptions{
			Thresholds:   req.Thresholds,
			Strict:       req.Strict,
			BaselinePath: req.BaselinePath,
			CurrentPath:  output,
		}), nil
	}
}

// newGitClient opens the project repository with the metrics and log
// directories hidden from status and clean, so baselines survive a rollback.
func newGitClient(ctx context.Context, root string) (*git.Client, error) {
	client, err := git.NewClient(ctx, app.runner, root)
	if err != nil {
		return nil, exitWith(models.ExitPreflightFailure, err)
	}
	client.Exclude(app.cfg.Global.MetricsDir, app.cfg.Refactor.LogDir)
	return client, nil
}

func runRefactor(cmd *cobra.Command, args []string) error {
	root, err := app.requireRoot()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	gitClient, err := newGitClient(ctx, root)
	if err != nil {
		return err
	}

	ex := refactor.NewExecutor(gitClient, toolchain.NewContext(app.runner, root), app.cfg, metricsGate(root), app.log)
	ex.Confirm = newConfirmer()
	defer func() { _ = app.log.Close() }()

	baselinePath := flagRefactorBaseline
	if baselinePath == "" {
		baselinePath = baseline.GetDefaultBaselinePath(app.cfg.Global.MetricsDir)
	}

	run := ex.Execute(ctx, refactor.Options{
		Description:  flagRefactorDescription,
		Command:      flagRefactorCommand,
		ScriptPath:   flagRefactorScript,
		Timeout:      time.Duration(flagRefactorTimeout) * time.Minute,
		SkipTests:    flagSkipTests,
		SkipMetrics:  flagSkipMetrics,
		KeepBackup:   flagKeepBackup || app.cfg.Refactor.KeepBackup,
		Force:        flagForce,
		DryRun:       flagDryRun,
		BaselinePath: baselinePath,
		Thresholds:   app.cfg.Thresholds,
		Strict:       flagStrict,
	})

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), refactor.Summary(run))
	if run.ExitCode != models.ExitSuccess {
		return exitWith(run.ExitCode, nil)
	}
	return nil
}

// newConfirmer builds the confirmation prompt. Tests replace it.
var newConfirmer = refactor.NewTerminalConfirmer

func runRefactorCleanup(cmd *cobra.Command, args []string) error {
	if flagRetentionDays < 0 {
		return fmt.Errorf("--retention-days must not be negative")
	}
	root, err := app.requireRoot()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	gitClient, err := newGitClient(ctx, root)
	if err != nil {
		return err
	}

	res, err := gitClient.CleanupBackupBranches(ctx, app.cfg.Refactor.BackupPrefix, flagRetentionDays, flagDryRun, time.Now())
	if err != nil {
		return exitWith(models.ExitFatal, err)
	}

	out := cmd.OutOrStdout()
	verb := "Deleted"
	if flagDryRun {
		verb = "Would delete"
	}
	for _, b := range res.Deleted {
		_, _ = fmt.Fprintf(out, "%s %s (%s old)\n", verb, b.Name, formatAge(b.Age))
	}
	for name, err := range res.Failed {
		app.log.Error(fmt.Sprintf("Failed to delete %s: %v", name, err))
	}
	_, _ = fmt.Fprintf(out, "%s %d backup branch(es), kept %d\n", verb, len(res.Deleted), len(res.Kept))

	if len(res.Failed) > 0 {
		return exitWith(models.ExitFatal, fmt.Errorf("%d backup branch(es) could not be deleted", len(res.Failed)))
	}
	return nil
}

func formatAge(d time.Duration) string {
	if d >= 48*time.Hour {
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
	return d.Round(time.Minute).String()
}
