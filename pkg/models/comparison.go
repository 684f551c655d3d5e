package models

import (
	"sort"
	"time"
)

// Status is the outcome of a gate check on one metric, or of a whole comparison.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Direction tells the comparator which way a metric improves.
type Direction string

const (
	LowerIsBetter  Direction = "lower"
	HigherIsBetter Direction = "higher"
)

// Thresholds are the tolerated regressions per metric family.
// A zero threshold means any regression is a failure.
type Thresholds struct {
	CoverageDecrease    float64 `json:"coverageDecrease" yaml:"coverage_decrease"`
	DuplicationIncrease float64 `json:"duplicationIncrease" yaml:"duplication_increase"`
	LintErrorIncrease   float64 `json:"lintErrorIncrease" yaml:"lint_error_increase"`
	LintWarningIncrease float64 `json:"lintWarningIncrease" yaml:"lint_warning_increase"`
	SecurityIncrease    float64 `json:"securityIncrease" yaml:"security_increase"`
	TechDebtIncrease    float64 `json:"techDebtIncrease" yaml:"tech_debt_increase"`
	OutdatedIncrease    float64 `json:"outdatedIncrease" yaml:"outdated_increase"`
}

// SnapshotRef identifies one side of a comparison.
type SnapshotRef struct {
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Git       GitInfo   `json:"git"`
}

// MetricDelta is the per-metric comparison entry.
type MetricDelta struct {
	Before         float64   `json:"before"`
	After          float64   `json:"after"`
	Delta          float64   `json:"delta"`
	FormattedDelta string    `json:"formattedDelta"`
	Status         Status    `json:"status"`
	Direction      Direction `json:"direction"`
	Threshold      float64   `json:"threshold"`
	Unit           string    `json:"unit,omitempty"`
}

// ComparisonResult is derived from a baseline and a current snapshot.
type ComparisonResult struct {
	Timestamp       time.Time              `json:"timestamp"`
	Baseline        SnapshotRef            `json:"baseline"`
	Current         SnapshotRef            `json:"current"`
	Thresholds      Thresholds             `json:"thresholds"`
	Strict          bool                   `json:"strict"`
	Metrics         map[string]MetricDelta `json:"metrics"`
	Order           []string               `json:"-"`
	Incomparable    map[string]string      `json:"incomparable,omitempty"`
	Overall         Status                 `json:"overall"`
	Recommendations []string               `json:"recommendations"`
}

// Names returns metric names in display order.
func (r *ComparisonResult) Names() []string {
	if len(r.Order) > 0 {
		return r.Order
	}
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns how many metrics ended with the given status.
func (r *ComparisonResult) Count(s Status) int {
	n := 0
	for _, m := range r.Metrics {
		if m.Status == s {
			n++
		}
	}
	return n
}
