package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/mikematt33/qgate/internal/analysis"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
)

// SummaryPath is the istanbul json-summary location relative to the project root.
var SummaryPath = filepath.Join("coverage", "coverage-summary.json")

const defaultTimeout = 300 * time.Second

var (
	// istanbul text-summary: "Lines        : 85.5% ( 171/200 )"
	textSummaryRe = regexp.MustCompile(`(?m)^\s*(Lines|Branches|Functions)\s*:\s*([\d.]+)%`)
	// jest table: "All files |   85.5 |    70 |    90 |   85.5 |"
	allFilesRe = regexp.MustCompile(`(?m)^\s*All files\s*\|\s*([\d.]+)\s*\|\s*([\d.]+)\s*\|\s*([\d.]+)\s*\|\s*([\d.]+)`)
)

type Analyzer struct {
	now func() time.Time
}

func New() *Analyzer {
	return &Analyzer{now: time.Now}
}

func (a *Analyzer) Name() string {
	return "coverage"
}

type pctValue struct {
	Pct json.RawMessage `json:"pct"`
}

type summary struct {
	Total struct {
		Lines     pctValue `json:"lines"`
		Branches  pctValue `json:"branches"`
		Functions pctValue `json:"functions"`
	} `json:"total"`
}

func (a *Analyzer) Analyze(ctx context.Context, tc *toolchain.Context, cfg analysis.Config, m *models.Metrics) error {
	cmd, err := analysis.CommandLine(cfg.Tools.Coverage)
	if err != nil {
		return fmt.Errorf("coverage: %w", err)
	}
	cmd.Timeout = cfg.Tools.CoverageTimeout
	if cmd.Timeout <= 0 {
		cmd.Timeout = defaultTimeout
	}

	// Whole seconds; file systems with coarse mtimes would otherwise reject a fresh summary.
	started := a.now().Truncate(time.Second)
	res, err := tc.Run(ctx, cmd)
	if err != nil {
		// ErrTimeout lands here; the process group is already gone.
		return err
	}

	// A failing test run still writes a usable summary.
	summaryFile := tc.Path(SummaryPath)
	if info, statErr := os.Stat(summaryFile); statErr == nil && !info.ModTime().Before(started) {
		data, readErr := os.ReadFile(summaryFile)
		if readErr == nil {
			if metrics, parseErr := ParseSummary(data); parseErr == nil {
				m.Coverage = metrics
				return nil
			}
		}
	}

	metrics, ok := ParseText(res.Combined())
	if !ok {
		return analysis.OutputError("coverage", res, fmt.Errorf("no coverage summary found"))
	}
	m.Coverage = metrics
	return nil
}

// ParseSummary reads total percentages from coverage-summary.json.
// istanbul writes "Unknown" when nothing was instrumented; that becomes nil.
func ParseSummary(data []byte) (models.CoverageMetrics, error) {
	var s summary
	if err := json.Unmarshal(data, &s); err != nil {
		return models.CoverageMetrics{}, fmt.Errorf("failed to parse coverage summary: %w", err)
	}

	out := models.CoverageMetrics{
		Lines:     pct(s.Total.Lines.Pct),
		Branches:  pct(s.Total.Branches.Pct),
		Functions: pct(s.Total.Functions.Pct),
	}
	if out.Lines == nil && out.Branches == nil && out.Functions == nil {
		return out, fmt.Errorf("coverage summary has no totals")
	}
	return out, nil
}

func pct(raw json.RawMessage) *float64 {
	var v float64
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return &v
}

// ParseText extracts percentages from tool stdout. The text-summary reporter
// wins over the jest table when both are present.
func ParseText(out string) (models.CoverageMetrics, bool) {
	var m models.CoverageMetrics

	for _, match := range textSummaryRe.FindAllStringSubmatch(out, -1) {
		v, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		switch match[1] {
		case "Lines":
			m.Lines = models.Float(v)
		case "Branches":
			m.Branches = models.Float(v)
		case "Functions":
			m.Functions = models.Float(v)
		}
	}
	if m.Lines != nil || m.Branches != nil || m.Functions != nil {
		return m, true
	}

	// columns: % Stmts | % Branch | % Funcs | % Lines
	match := allFilesRe.FindStringSubmatch(out)
	if match == nil {
		return m, false
	}
	m.Branches = parseFloat(match[2])
	m.Functions = parseFloat(match[3])
	m.Lines = parseFloat(match[4])
	return m, m.Lines != nil || m.Branches != nil || m.Functions != nil
}

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (a *Analyzer) Skip(m *models.Metrics, reason string) {
	m.Coverage = models.CoverageMetrics{Collection: models.Skip(reason)}
}
