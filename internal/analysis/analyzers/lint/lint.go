package lint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikematt33/qgate/internal/analysis"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
)

type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Name() string {
	return "eslint"
}

// fileResult is one entry of `eslint --format json`.
type fileResult struct {
	FilePath            string `json:"filePath"`
	ErrorCount          int    `json:"errorCount"`
	WarningCount        int    `json:"warningCount"`
	FixableErrorCount   int    `json:"fixableErrorCount"`
	FixableWarningCount int    `json:"fixableWarningCount"`
}

func (a *Analyzer) Analyze(ctx context.Context, tc *toolchain.Context, cfg analysis.Config, m *models.Metrics) error {
	args := append(append([]string{}, cfg.Targets...), "--format", "json")
	cmd, err := analysis.CommandLine(cfg.Tools.ESLint, args...)
	if err != nil {
		return fmt.Errorf("eslint: %w", err)
	}
	cmd.Timeout = analysis.DefaultToolTimeout

	res, err := tc.Run(ctx, cmd)
	if err != nil {
		return err
	}

	// eslint exits 1 when it reports errors; the JSON is still complete.
	metrics, err := Parse(res.Stdout)
	if err != nil {
		return analysis.OutputError("eslint", res, err)
	}
	m.ESLint = metrics
	return nil
}

// Parse sums an eslint JSON report.
// Files counts files with at least one problem.
func Parse(stdout string) (models.ESLintMetrics, error) {
	var out models.ESLintMetrics

	trimmed := strings.TrimSpace(stdout)
	// npx can print notices before the report
	if idx := strings.Index(trimmed, "["); idx > 0 {
		trimmed = trimmed[idx:]
	}
	if trimmed == "" {
		return out, fmt.Errorf("empty report")
	}

	var files []fileResult
	if err := json.Unmarshal([]byte(trimmed), &files); err != nil {
		return out, fmt.Errorf("failed to parse eslint report: %w", err)
	}

	for _, f := range files {
		out.Errors += f.ErrorCount
		out.Warnings += f.WarningCount
		out.Fixable += f.FixableErrorCount + f.FixableWarningCount
		if f.ErrorCount+f.WarningCount > 0 {
			out.Files++
		}
	}
	return out, nil
}

func (a *Analyzer) Skip(m *models.Metrics, reason string) {
	m.ESLint = models.ESLintMetrics{Collection: models.Skip(reason)}
}
