package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikematt33/qgate/internal/report"
	"github.com/mikematt33/qgate/pkg/baseline"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the current metrics against the baseline",
	Long: `Compare a current snapshot with the baseline and gate the result against the
configured regression thresholds.

Unless --current is given or capture is disabled, a fresh snapshot is captured
first. Metrics that were skipped in either snapshot are listed as not compared
and never affect the outcome. In --strict mode warnings fail the gate too.

Exit codes: 0 pass or warn, 4 fail, 2 when a snapshot cannot be read.`,
	Example: `  qgate compare
  qgate compare --skip-capture --strict
  qgate compare --current post.json --report quality-report.md
  qgate compare --coverage-threshold 0.5 --lint-threshold 2`,
	Args: cobra.NoArgs,
	RunE: runCompare,
}

var (
	flagCompareBaseline  string
	flagCompareCurrent   string
	flagCapture          bool
	flagSkipCapture      bool
	flagStrict           bool
	flagReport           string
	flagCoverageLimit    float64
	flagDuplicationLimit float64
	flagLintLimit        float64
)

func init() {
	rootCmd.AddCommand(compareCmd)
	f := compareCmd.Flags()
	f.StringVarP(&flagCompareBaseline, "baseline", "b", "", "Baseline snapshot (default: <metrics_dir>/baseline.json)")
	f.StringVarP(&flagCompareCurrent, "current", "c", "", "Current snapshot to compare instead of capturing one")
	f.BoolVar(&flagCapture, "capture", true, "Capture a fresh current snapshot before comparing")
	f.BoolVar(&flagSkipCapture, "skip-capture", false, "Compare the last captured <metrics_dir>/current.json")
	f.BoolVar(&flagStrict, "strict", false, "Treat warnings as failures")
	f.StringVar(&flagReport, "report", "", "Also write a markdown report to this path")
	f.Float64Var(&flagCoverageLimit, "coverage-threshold", 0, "Tolerated coverage decrease in percentage points (overrides config)")
	f.Float64Var(&flagDuplicationLimit, "duplication-threshold", 0, "Tolerated duplication increase in percentage points (overrides config)")
	f.Float64Var(&flagLintLimit, "lint-threshold", 0, "Tolerated increase in ESLint errors (overrides config)")
	f.StringVarP(&flagFormat, "format", "f", "text", "Output format (text, json, markdown; default: global.output_mode)")
	addCollectFlags(compareCmd)
	compareCmd.MarkFlagsMutuallyExclusive("current", "skip-capture")

	_ = compareCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return report.Formats, cobra.ShellCompDirectiveNoFileComp
	})
	_ = compareCmd.MarkFlagFilename("baseline", "json")
	_ = compareCmd.MarkFlagFilename("current", "json")
	_ = compareCmd.MarkFlagFilename("report", "md")
}

// thresholdsFromFlags layers explicitly set threshold flags over the config.
func thresholdsFromFlags(cmd *cobra.Command, t models.Thresholds) models.Thresholds {
	if cmd.Flags().Changed("coverage-threshold") {
		t.CoverageDecrease = flagCoverageLimit
	}
	if cmd.Flags().Changed("duplication-threshold") {
		t.DuplicationIncrease = flagDuplicationLimit
	}
	if cmd.Flags().Changed("lint-threshold") {
		t.LintErrorIncrease = flagLintLimit
	}
	return t
}

func runCompare(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	thresholds := thresholdsFromFlags(cmd, app.cfg.Thresholds)
	for _, v := range []float64{thresholds.CoverageDecrease, thresholds.DuplicationIncrease, thresholds.LintErrorIncrease} {
		if v < 0 {
			return fmt.Errorf("thresholds must not be negative")
		}
	}

	// Relative paths are resolved against the project root, as refactor does.
	baselinePath := app.path(flagCompareBaseline)
	if baselinePath == "" {
		baselinePath = app.path(baseline.GetDefaultBaselinePath(app.cfg.Global.MetricsDir))
	}
	before, err := baseline.Load(baselinePath)
	if err != nil {
		return exitWith(models.ExitIOError, fmt.Errorf("%w (run `qgate measure --baseline` to create one)", err))
	}

	currentPath := app.path(flagCompareCurrent)
	var after *models.Snapshot
	switch {
	case currentPath != "":
		after, err = baseline.Load(currentPath)
		if err != nil {
			return exitWith(models.ExitIOError, err)
		}
	case flagCapture && !flagSkipCapture:
		root, err := app.requireRoot()
		if err != nil {
			return err
		}
		currentPath = app.path(baseline.GetDefaultCurrentPath(app.cfg.Global.MetricsDir))
		if after, err = capture(cmd.Context(), collectOptions(root), currentPath); err != nil {
			return err
		}
	default:
		currentPath = app.path(baseline.GetDefaultCurrentPath(app.cfg.Global.MetricsDir))
		after, err = baseline.Load(currentPath)
		if err != nil {
			return exitWith(models.ExitIOError, err)
		}
	}

	result := baseline.Compare(before, after, baseline.CompareOptions{
		Thresholds:   thresholds,
		Strict:       flagStrict,
		BaselinePath: baselinePath,
		CurrentPath:  currentPath,
	})

	renderer := report.NewRenderer(format, report.RenderOptions{NoColor: !isTerminal(os.Stdout)})
	if err := renderer.Render(result, cmd.OutOrStdout()); err != nil {
		return exitWith(models.ExitIOError, fmt.Errorf("error rendering report: %w", err))
	}

	if reportPath := app.path(flagReport); reportPath != "" {
		if err := writeMarkdownReport(result, reportPath); err != nil {
			return exitWith(models.ExitIOError, err)
		}
		app.log.Success("Markdown report written", zap.String("path", reportPath))
	}

	if result.Overall == models.StatusFail {
		return exitWith(models.ExitMetricsGate, nil)
	}
	return nil
}

func writeMarkdownReport(result *models.ComparisonResult, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := report.NewRenderer(report.FormatMarkdown, report.RenderOptions{}).Render(result, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
