package security

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
	return "security"
}

type auditReport struct {
	Error *struct {
		Code    string `json:"code"`
		Summary string `json:"summary"`
	} `json:"error"`
	Metadata *struct {
		Vulnerabilities *struct {
			Info     int  `json:"info"`
			Low      int  `json:"low"`
			Moderate int  `json:"moderate"`
			High     int  `json:"high"`
			Critical int  `json:"critical"`
			Total    *int `json:"total"`
		} `json:"vulnerabilities"`
	} `json:"metadata"`
}

func (a *Analyzer) Analyze(ctx context.Context, tc *toolchain.Context, cfg analysis.Config, m *models.Metrics) error {
	cmd, err := analysis.CommandLine(cfg.Tools.Audit)
	if err != nil {
		return fmt.Errorf("npm audit: %w", err)
	}
	cmd.Timeout = analysis.DefaultToolTimeout

	res, err := tc.Run(ctx, cmd)
	if err != nil {
		return err
	}

	// npm audit exits 1 whenever vulnerabilities exist.
	metrics, err := Parse(res.Stdout)
	if err != nil {
		return analysis.OutputError("npm audit", res, err)
	}
	m.Security = metrics
	return nil
}

// Parse reads metadata.vulnerabilities from `npm audit --json`.
func Parse(stdout string) (models.SecurityMetrics, error) {
	var r auditReport
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &r); err != nil {
		return models.SecurityMetrics{}, fmt.Errorf("failed to parse audit report: %w", err)
	}
	if r.Error != nil {
		return models.SecurityMetrics{}, fmt.Errorf("npm audit error %s: %s", r.Error.Code, r.Error.Summary)
	}
	if r.Metadata == nil || r.Metadata.Vulnerabilities == nil {
		return models.SecurityMetrics{}, fmt.Errorf("audit report has no vulnerability metadata")
	}

	v := r.Metadata.Vulnerabilities
	out := models.SecurityMetrics{
		Critical: v.Critical,
		High:     v.High,
		Moderate: v.Moderate,
		Low:      v.Low,
		Info:     v.Info,
	}
	if v.Total != nil {
		out.Total = *v.Total
	} else {
		out.Total = v.Critical + v.High + v.Moderate + v.Low + v.Info
	}
	return out, nil
}

func (a *Analyzer) Skip(m *models.Metrics, reason string) {
	m.Security = models.SecurityMetrics{Collection: models.Skip(reason)}
}
