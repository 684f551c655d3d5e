package security

import (
	"context"
	"testing"

	"github.com/mikematt33/qgate/internal/analysis"
	"github.com/mikematt33/qgate/internal/config"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/internal/toolchain/toolchaintest"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const auditV7 = `{
  "auditReportVersion": 2,
  "vulnerabilities": {},
  "metadata": {
    "vulnerabilities": {"info": 0, "low": 2, "moderate": 1, "high": 3, "critical": 1, "total": 7},
    "dependencies": {"prod": 120, "dev": 300, "total": 420}
  }
}`

func TestParse(t *testing.T) {
	got, err := Parse(auditV7)
	require.NoError(t, err)
	assert.Equal(t, models.SecurityMetrics{Critical: 1, High: 3, Moderate: 1, Low: 2, Total: 7}, got)
}

func TestParseComputesMissingTotal(t *testing.T) {
	got, err := Parse(`{"metadata": {"vulnerabilities": {"info": 1, "low": 1, "moderate": 0, "high": 1, "critical": 0}}}`)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Total)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"not json":     "npm ERR! code ENOLOCK",
		"audit error":  `{"error": {"code": "ENOLOCK", "summary": "This command requires an existing lockfile."}}`,
		"no metadata":  `{"auditReportVersion": 2}`,
		"empty output": "",
	}
	for name, out := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(out)
			assert.Error(t, err)
		})
	}
}

func TestAnalyzeAcceptsVulnerabilityExit(t *testing.T) {
	runner := toolchaintest.NewFakeRunner().On("npm audit --json", toolchaintest.Stdout(1, auditV7))
	tc := toolchain.NewContext(runner, t.TempDir())

	var m models.Metrics
	cfg := analysis.Config{Targets: []string{"src"}, Tools: config.Default().Tools}
	require.NoError(t, New().Analyze(context.Background(), tc, cfg, &m))
	assert.Equal(t, 3, m.Security.High)
}
