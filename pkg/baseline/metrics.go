package baseline

import (
	"github.com/mikematt33/qgate/pkg/models"
)

func counted(c models.Collection, v int) (float64, bool, string) {
	if c.Skipped {
		return 0, false, c.SkipReason
	}
	return float64(v), true, ""
}

func coverage(c models.CoverageMetrics, v *float64) (float64, bool, string) {
	if c.Skipped {
		return 0, false, c.SkipReason
	}
	if v == nil {
		return 0, false, "coverage value not reported"
	}
	return *v, true, ""
}

var trackedMetrics = []trackedMetric{
	{
		Name:      "eslint.errors",
		Direction: models.LowerIsBetter,
		Unit:      "count",
		threshold: func(t models.Thresholds) float64 { return t.LintErrorIncrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return counted(s.Metrics.ESLint.Collection, s.Metrics.ESLint.Errors)
		},
	},
	{
		Name:          "eslint.warnings",
		Direction:     models.LowerIsBetter,
		Unit:          "count",
		Informational: true,
		threshold:     func(t models.Thresholds) float64 { return t.LintWarningIncrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return counted(s.Metrics.ESLint.Collection, s.Metrics.ESLint.Warnings)
		},
	},
	{
		Name:      "duplication.percentage",
		Direction: models.LowerIsBetter,
		Unit:      "percent",
		threshold: func(t models.Thresholds) float64 { return t.DuplicationIncrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			d := s.Metrics.Duplication
			if d.Skipped {
				return 0, false, d.SkipReason
			}
			return d.Percentage, true, ""
		},
	},
	{
		Name:      "coverage.lines",
		Direction: models.HigherIsBetter,
		Unit:      "percent",
		threshold: func(t models.Thresholds) float64 { return t.CoverageDecrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return coverage(s.Metrics.Coverage, s.Metrics.Coverage.Lines)
		},
	},
	{
		Name:      "coverage.branches",
		Direction: models.HigherIsBetter,
		Unit:      "percent",
		threshold: func(t models.Thresholds) float64 { return t.CoverageDecrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return coverage(s.Metrics.Coverage, s.Metrics.Coverage.Branches)
		},
	},
	{
		Name:      "coverage.functions",
		Direction: models.HigherIsBetter,
		Unit:      "percent",
		threshold: func(t models.Thresholds) float64 { return t.CoverageDecrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return coverage(s.Metrics.Coverage, s.Metrics.Coverage.Functions)
		},
	},
	{
		Name:      "security.critical",
		Direction: models.LowerIsBetter,
		Unit:      "count",
		threshold: func(t models.Thresholds) float64 { return t.SecurityIncrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return counted(s.Metrics.Security.Collection, s.Metrics.Security.Critical)
		},
	},
	{
		Name:      "security.high",
		Direction: models.LowerIsBetter,
		Unit:      "count",
		threshold: func(t models.Thresholds) float64 { return t.SecurityIncrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return counted(s.Metrics.Security.Collection, s.Metrics.Security.High)
		},
	},
	{
		Name:      "security.moderate",
		Direction: models.LowerIsBetter,
		Unit:      "count",
		threshold: func(t models.Thresholds) float64 { return t.SecurityIncrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return counted(s.Metrics.Security.Collection, s.Metrics.Security.Moderate)
		},
	},
	{
		Name:          "security.low",
		Direction:     models.LowerIsBetter,
		Unit:          "count",
		Informational: true,
		threshold:     func(t models.Thresholds) float64 { return t.SecurityIncrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return counted(s.Metrics.Security.Collection, s.Metrics.Security.Low)
		},
	},
	{
		Name:      "techDebt.totalDebt",
		Direction: models.LowerIsBetter,
		Unit:      "count",
		threshold: func(t models.Thresholds) float64 { return t.TechDebtIncrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return counted(s.Metrics.TechDebt.Collection, s.Metrics.TechDebt.TotalDebt)
		},
	},
	{
		Name:      "dependencies.outdatedCount",
		Direction: models.LowerIsBetter,
		Unit:      "count",
		threshold: func(t models.Thresholds) float64 { return t.OutdatedIncrease },
		value: func(s *models.Snapshot) (float64, bool, string) {
			return counted(s.Metrics.Dependencies.Collection, s.Metrics.Dependencies.OutdatedCount)
		},
	},
}
