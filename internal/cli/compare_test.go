package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikematt33/qgate/internal/report"
	"github.com/mikematt33/qgate/internal/toolchain/toolchaintest"
	"github.com/mikematt33/qgate/pkg/baseline"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lintSnapshot(errors int, coverage float64) *models.Snapshot {
	return &models.Snapshot{
		SchemaVersion: models.SchemaVersion,
		Timestamp:     time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		Git:           models.GitInfo{Commit: "c0ffee00c0ffee00", Branch: "main"},
		Targets:       []string{"src"},
		Metrics: models.Metrics{
			ESLint: models.ESLintMetrics{Errors: errors},
			Coverage: models.CoverageMetrics{
				Lines:     models.Float(coverage),
				Branches:  models.Float(coverage),
				Functions: models.Float(coverage),
			},
			Dependencies: models.DependencyMetrics{Collection: models.Skip("disabled by flag")},
		},
	}
}

func saveSnapshots(t *testing.T, dir string, before, after *models.Snapshot) (string, string) {
	t.Helper()
	b := filepath.Join(dir, "baseline.json")
	c := filepath.Join(dir, "current.json")
	require.NoError(t, baseline.Save(before, b))
	require.NoError(t, baseline.Save(after, c))
	return b, c
}

func TestCompareFailExitsWithGateCode(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	b, c := saveSnapshots(t, t.TempDir(), lintSnapshot(0, 80), lintSnapshot(3, 80))

	out, err := execute(t, "compare", "-C", project, "--baseline", b, "--current", c, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, models.ExitMetricsGate, ExitCode(err))

	var result models.ComparisonResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.StatusFail, result.Overall)
	assert.Equal(t, models.StatusFail, result.Metrics["eslint.errors"].Status)
	assert.Equal(t, float64(3), result.Metrics["eslint.errors"].Delta)
	assert.Contains(t, result.Incomparable, "dependencies.outdatedCount")
}

func TestCompareThresholdFlagsOverrideConfig(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	b, c := saveSnapshots(t, t.TempDir(), lintSnapshot(0, 80), lintSnapshot(2, 79.5))

	_, err := execute(t, "compare", "-C", project, "--baseline", b, "--current", c)
	require.Error(t, err)
	assert.Equal(t, models.ExitMetricsGate, ExitCode(err))

	out, err := execute(t, "compare", "-C", project, "--baseline", b, "--current", c,
		"--lint-threshold", "2", "--coverage-threshold", "1")
	require.NoError(t, err, "warnings pass outside strict mode")
	assert.Regexp(t, `eslint\.errors\s+0\s+2\s+\+2\s+WARN`, out)
	assert.Regexp(t, `coverage\.lines\s+80%\s+79\.5%\s+-0\.50%\s+WARN`, out)
	assert.Contains(t, out, "Overall: WARN")
}

func TestCompareStrictFailsOnWarnings(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	// a coverage drop within the threshold is a warning
	b, c := saveSnapshots(t, t.TempDir(), lintSnapshot(0, 80), lintSnapshot(0, 79.5))

	_, err := execute(t, "compare", "-C", project, "--baseline", b, "--current", c, "--coverage-threshold", "1")
	require.NoError(t, err)

	_, err = execute(t, "compare", "-C", project, "--baseline", b, "--current", c, "--coverage-threshold", "1", "--strict")
	require.Error(t, err)
	assert.Equal(t, models.ExitMetricsGate, ExitCode(err))
}

func TestCompareWritesMarkdownReport(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	dir := t.TempDir()
	b, c := saveSnapshots(t, dir, lintSnapshot(1, 80), lintSnapshot(1, 82.25))
	reportPath := filepath.Join(dir, "reports", "quality.md")

	_, err := execute(t, "compare", "-C", project, "--baseline", b, "--current", c, "--report", reportPath)
	require.NoError(t, err)

	f, err := os.Open(reportPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	parsed, err := report.ParseMarkdownMetrics(f)
	require.NoError(t, err)
	assert.Equal(t, report.ParsedMetric{Before: 80, After: 82.25, Delta: 2.25, Status: models.StatusPass}, parsed["coverage.lines"])
	assert.Equal(t, report.ParsedMetric{Before: 1, After: 1, Delta: 0, Status: models.StatusPass}, parsed["eslint.errors"])
}

func TestComparePathsAreRelativeToProject(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	saveSnapshots(t, filepath.Join(project, "snaps"), lintSnapshot(0, 80), lintSnapshot(0, 80))
	chdir(t, t.TempDir())

	_, err := execute(t, "compare", "-C", project,
		"--baseline", filepath.Join("snaps", "baseline.json"),
		"--current", filepath.Join("snaps", "current.json"),
		"--report", filepath.Join("reports", "quality.md"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(project, "reports", "quality.md"))
	assert.NoFileExists(t, filepath.Join("reports", "quality.md"))
}

func TestCompareUsesConfiguredOutputMode(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	require.NoError(t, os.WriteFile(filepath.Join(project, ".qgate.yaml"), []byte("global:\n  output_mode: json\n"), 0644))
	b, c := saveSnapshots(t, t.TempDir(), lintSnapshot(0, 80), lintSnapshot(0, 80))

	out, err := execute(t, "compare", "-C", project, "--baseline", b, "--current", c)
	require.NoError(t, err)

	var result models.ComparisonResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.StatusPass, result.Overall)
}

func TestCompareSkipCaptureUsesLastSnapshot(t *testing.T) {
	project := sandbox(t)
	fake := toolchaintest.NewFakeRunner()
	useRunner(t, fake)
	saveSnapshots(t, filepath.Join(project, ".metrics"), lintSnapshot(0, 80), lintSnapshot(0, 80))

	out, err := execute(t, "compare", "-C", project, "--skip-capture")
	require.NoError(t, err)
	assert.Contains(t, out, "Overall: PASS")
	assert.Empty(t, fake.Calls(), "no analyzer may run when capture is skipped")
}

func TestCompareMissingBaselineIsIOError(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())

	_, err := execute(t, "compare", "-C", project, "--skip-capture")
	require.Error(t, err)
	assert.Equal(t, models.ExitIOError, ExitCode(err))
	assert.Contains(t, err.Error(), "qgate measure --baseline")
}

func TestCompareCorruptCurrentIsIOError(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	dir := t.TempDir()
	b, c := saveSnapshots(t, dir, lintSnapshot(0, 80), lintSnapshot(0, 80))
	require.NoError(t, os.WriteFile(c, []byte("{not json"), 0644))

	_, err := execute(t, "compare", "-C", project, "--baseline", b, "--current", c)
	require.Error(t, err)
	assert.Equal(t, models.ExitIOError, ExitCode(err))
}

func TestCompareCapturesCurrent(t *testing.T) {
	project := sandbox(t)
	writeSource(t, project, "src/index.js", "// TODO: one\n")
	useRunner(t, toolchaintest.NewFakeRunner())

	before := lintSnapshot(0, 80)
	require.NoError(t, baseline.Save(before, filepath.Join(project, ".metrics", "baseline.json")))

	_, err := execute(t, "compare", "-C", project, "--skip-coverage", "--skip-security", "--skip-dependencies", "--no-cache")
	// techDebt went from 0 to 1 with a zero threshold
	require.Error(t, err)
	assert.Equal(t, models.ExitMetricsGate, ExitCode(err))

	current, err := baseline.Load(filepath.Join(project, ".metrics", "current.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, current.Metrics.TechDebt.TotalDebt)
}

func TestCompareFormatCompletion(t *testing.T) {
	sandbox(t)
	out, err := execute(t, "__complete", "compare", "--format", "")
	require.NoError(t, err)
	assert.Contains(t, out, "text")
	assert.Contains(t, out, "json")
	assert.Contains(t, out, "markdown")
}
