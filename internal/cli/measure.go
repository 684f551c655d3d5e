package cli

import (
	"context"
	"fmt"

	"github.com/mikematt33/qgate/internal/collector"
	"github.com/mikematt33/qgate/internal/report"
	"github.com/mikematt33/qgate/pkg/baseline"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Capture a metrics snapshot of the project",
	Long: `Run every analyzer (ESLint, jscpd, coverage, npm audit, tech-debt markers
and npm outdated) against the project and write a metrics snapshot.

A failing analyzer never aborts the snapshot: its metrics are recorded as
skipped with the reason, so later comparisons treat them as incomparable.
Only a missing node/npm installation fails the command.`,
	Example: `  qgate measure --baseline
  qgate measure --targets src,lib --skip-coverage
  qgate measure --output /tmp/snapshot.json --format json`,
	Args: cobra.NoArgs,
	RunE: runMeasure,
}

// Flags shared by measure and compare
var (
	flagFormat           string
	flagTargets          []string
	flagSkipCoverage     bool
	flagSkipSecurity     bool
	flagSkipDependencies bool
	flagNoCache          bool
)

var (
	flagMeasureBaseline bool
	flagMeasureOutput   string
)

func init() {
	rootCmd.AddCommand(measureCmd)
	f := measureCmd.Flags()
	f.BoolVar(&flagMeasureBaseline, "baseline", false, "Write the snapshot as the baseline instead of the current snapshot")
	f.StringVarP(&flagMeasureOutput, "output", "o", "", "Snapshot path (default: <metrics_dir>/current.json or baseline.json)")
	f.StringVarP(&flagFormat, "format", "f", "text", "Summary format (text, json; default: global.output_mode)")
	addCollectFlags(measureCmd)

	_ = measureCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = measureCmd.MarkFlagFilename("output", "json")
}

func addCollectFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVarP(&flagTargets, "targets", "t", nil, "Directories to analyze (default: global.targets)")
	f.BoolVar(&flagSkipCoverage, "skip-coverage", false, "Do not run the test suite for coverage")
	f.BoolVar(&flagSkipSecurity, "skip-security", false, "Do not run npm audit")
	f.BoolVar(&flagSkipDependencies, "skip-dependencies", false, "Do not run npm outdated")
	f.BoolVar(&flagNoCache, "no-cache", false, "Ignore cached metrics for the current commit")
	_ = cmd.MarkFlagDirname("targets")
}

func collectOptions(root string) collector.Options {
	return collector.Options{
		Root:             root,
		Targets:          flagTargets,
		SkipCoverage:     flagSkipCoverage,
		SkipSecurity:     flagSkipSecurity,
		SkipDependencies: flagSkipDependencies,
		NoCache:          flagNoCache,
		ShowProgress:     app.showProgress(),
	}
}

// capture collects a snapshot and writes it to path.
func capture(ctx context.Context, opts collector.Options, path string) (*models.Snapshot, error) {
	snap, err := app.collector().Collect(ctx, opts)
	if err != nil {
		return nil, exitWith(models.ExitPreflightFailure, err)
	}
	if err := baseline.Save(snap, path); err != nil {
		return nil, exitWith(models.ExitIOError, err)
	}
	app.log.Success("Snapshot written", zap.String("path", path))
	return snap, nil
}

// outputFormat returns --format, or global.output_mode when the flag is unset.
func outputFormat(cmd *cobra.Command) (report.Format, error) {
	name := flagFormat
	if !cmd.Flags().Changed("format") && app.cfg.Global.OutputMode != "" {
		name = app.cfg.Global.OutputMode
	}
	return report.ParseFormat(name)
}

func runMeasure(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	if format == report.FormatMarkdown {
		return fmt.Errorf("measure supports text and json output")
	}

	root, err := app.requireRoot()
	if err != nil {
		return err
	}

	path := app.path(flagMeasureOutput)
	if path == "" {
		path = app.path(baseline.GetDefaultCurrentPath(app.cfg.Global.MetricsDir))
		if flagMeasureBaseline {
			path = app.path(baseline.GetDefaultBaselinePath(app.cfg.Global.MetricsDir))
		}
	}

	snap, err := capture(cmd.Context(), collectOptions(root), path)
	if err != nil {
		return err
	}
	return report.RenderSnapshot(snap, format, cmd.OutOrStdout())
}
