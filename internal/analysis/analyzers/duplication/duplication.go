package duplication

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikematt33/qgate/internal/analysis"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
)

// ReportFile is the file jscpd's json reporter writes into the output directory.
const ReportFile = "jscpd-report.json"

type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Name() string {
	return "duplication"
}

type report struct {
	Statistics struct {
		Total struct {
			Lines           int     `json:"lines"`
			Sources         int     `json:"sources"`
			Clones          int     `json:"clones"`
			DuplicatedLines int     `json:"duplicatedLines"`
			Percentage      float64 `json:"percentage"`
		} `json:"total"`
	} `json:"statistics"`
}

// OutputDir is where jscpd writes its report for a metrics directory.
func OutputDir(metricsDir string) string {
	return filepath.Join(metricsDir, "jscpd")
}

func (a *Analyzer) Analyze(ctx context.Context, tc *toolchain.Context, cfg analysis.Config, m *models.Metrics) error {
	outDir := OutputDir(cfg.MetricsDir)
	absOut := tc.Path(outDir)
	if err := os.MkdirAll(absOut, 0755); err != nil {
		return fmt.Errorf("failed to create jscpd output directory: %w", err)
	}
	reportPath := filepath.Join(absOut, ReportFile)
	// A report left over from an earlier run must not be mistaken for this one.
	if err := os.Remove(reportPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale jscpd report: %w", err)
	}

	args := append(append([]string{}, cfg.Targets...), "--reporters", "json", "--output", outDir, "--silent")
	cmd, err := analysis.CommandLine(cfg.Tools.JSCPD, args...)
	if err != nil {
		return fmt.Errorf("jscpd: %w", err)
	}
	cmd.Timeout = analysis.DefaultToolTimeout

	res, err := tc.Run(ctx, cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		return analysis.OutputError("jscpd", res, fmt.Errorf("no report written: %w", err))
	}

	metrics, err := Parse(data)
	if err != nil {
		return analysis.OutputError("jscpd", res, err)
	}
	m.Duplication = metrics
	return nil
}

// Parse reads statistics.total from a jscpd json report.
func Parse(data []byte) (models.DuplicationMetrics, error) {
	var r report
	if err := json.Unmarshal(data, &r); err != nil {
		return models.DuplicationMetrics{}, fmt.Errorf("failed to parse jscpd report: %w", err)
	}

	total := r.Statistics.Total
	return models.DuplicationMetrics{
		Percentage: total.Percentage,
		Clones:     total.Clones,
		Sources:    total.Sources,
		Lines:      total.DuplicatedLines,
	}, nil
}

func (a *Analyzer) Skip(m *models.Metrics, reason string) {
	m.Duplication = models.DuplicationMetrics{Collection: models.Skip(reason)}
}
