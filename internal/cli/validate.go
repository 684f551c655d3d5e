package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/mikematt33/qgate/internal/refactor"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the lint, typecheck and test gates",
	Long: `Run the same validation gates a refactor runs after its change (lint,
typecheck and tests from the refactor section of the config) against the
current working tree. Nothing in the repository is modified.

Every gate runs even when an earlier one fails. Exits 3 when any gate fails.`,
	Example: `  qgate validate
  qgate validate --skip-tests`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&flagSkipTests, "skip-tests", false, "Skip the test gate")
}

func runValidate(cmd *cobra.Command, args []string) error {
	root, err := app.requireRoot()
	if err != nil {
		return err
	}

	gates := refactor.NewGates(toolchain.NewContext(app.runner, root), app.cfg.Refactor)
	results, passed := gates.RunAll(cmd.Context(), refactor.GateOptions{SkipTests: flagSkipTests})

	out := cmd.OutOrStdout()
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed, color.Bold)
	skip := color.New(color.FgHiBlack)

	tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "GATE\tRESULT\tDURATION\tCOMMAND")
	for _, r := range results {
		status := ok.Sprint("PASS")
		switch {
		case r.Skipped:
			status = skip.Sprint("SKIP")
		case r.TimedOut():
			status = bad.Sprint("TIMEOUT")
		case !r.Passed:
			status = bad.Sprint("FAIL")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Gate, status, r.Duration.Round(time.Millisecond), orNone(r.Command))
	}
	_ = tw.Flush()

	for _, r := range results {
		if r.Passed || r.Skipped {
			continue
		}
		_, _ = fmt.Fprintf(out, "\n--- %s output ---\n%s\n", r.Gate, strings.TrimRight(lastLines(r.Output, 30), "\n"))
	}

	if !passed {
		return exitWith(models.ExitValidationFailed, nil)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(not configured)"
	}
	return s
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
