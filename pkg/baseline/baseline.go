package baseline

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/mikematt33/qgate/pkg/insights"
	"github.com/mikematt33/qgate/pkg/models"
)

// CompareOptions controls how two snapshots are gated against each other.
type CompareOptions struct {
	Thresholds   models.Thresholds
	Strict       bool
	BaselinePath string
	CurrentPath  string
	Now          func() time.Time
}

// trackedMetric describes one comparable value inside a snapshot.
// Informational metrics never fail on their own; a regression is at most a warning.
type trackedMetric struct {
	Name          string
	Direction     models.Direction
	Unit          string
	Informational bool
	threshold     func(models.Thresholds) float64
	value         func(*models.Snapshot) (float64, bool, string)
}

// Save writes a snapshot as indented JSON, creating parent directories.
func Save(snap *models.Snapshot, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return nil
}

// Load reads a snapshot from disk.
func Load(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", path, err)
	}
	if snap.SchemaVersion == "" {
		return nil, fmt.Errorf("snapshot %s has no schemaVersion", path)
	}

	return &snap, nil
}

// Compare gates the current snapshot against the baseline.
func Compare(before, after *models.Snapshot, opts CompareOptions) *models.ComparisonResult {
	if before == nil || after == nil {
		return nil
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	result := &models.ComparisonResult{
		Timestamp: now(),
		Baseline: models.SnapshotRef{
			Path:      opts.BaselinePath,
			Timestamp: before.Timestamp,
			Git:       before.Git,
		},
		Current: models.SnapshotRef{
			Path:      opts.CurrentPath,
			Timestamp: after.Timestamp,
			Git:       after.Git,
		},
		Thresholds:   opts.Thresholds,
		Strict:       opts.Strict,
		Metrics:      make(map[string]models.MetricDelta),
		Incomparable: make(map[string]string),
	}

	for _, tm := range trackedMetrics {
		prev, prevOK, prevReason := tm.value(before)
		curr, currOK, currReason := tm.value(after)
		if !prevOK || !currOK {
			reason := prevReason
			if reason == "" {
				reason = currReason
			}
			if !prevOK && !currOK && prevReason != currReason {
				reason = prevReason + "; " + currReason
			}
			result.Incomparable[tm.Name] = reason
			continue
		}

		threshold := tm.threshold(opts.Thresholds)
		delta := round(curr - prev)
		status := Classify(tm.Direction, delta, threshold)
		if tm.Informational && status == models.StatusFail {
			status = models.StatusWarn
		}

		result.Metrics[tm.Name] = models.MetricDelta{
			Before:         prev,
			After:          curr,
			Delta:          delta,
			FormattedDelta: FormatDelta(delta, tm.Unit),
			Status:         status,
			Direction:      tm.Direction,
			Threshold:      threshold,
			Unit:           tm.Unit,
		}
		result.Order = append(result.Order, tm.Name)
	}

	if len(result.Incomparable) == 0 {
		result.Incomparable = nil
	}

	result.Overall = Aggregate(result.Metrics, opts.Strict)
	result.Recommendations = insights.Recommend(result)

	return result
}

// Classify applies the direction-aware gate rule to a single delta.
//
// Lower is better: delta > t fails, 0 < delta <= t warns, otherwise passes.
// Higher is better: delta < -t fails, -t <= delta < 0 warns, otherwise passes.
func Classify(dir models.Direction, delta, threshold float64) models.Status {
	if threshold < 0 {
		threshold = 0
	}

	if dir == models.HigherIsBetter {
		switch {
		case delta < -threshold:
			return models.StatusFail
		case delta < 0:
			return models.StatusWarn
		default:
			return models.StatusPass
		}
	}

	switch {
	case delta > threshold:
		return models.StatusFail
	case delta > 0:
		return models.StatusWarn
	default:
		return models.StatusPass
	}
}

// Aggregate derives the overall status. Strict mode promotes any warning to a failure.
func Aggregate(metrics map[string]models.MetricDelta, strict bool) models.Status {
	hasWarn := false
	for _, m := range metrics {
		switch m.Status {
		case models.StatusFail:
			return models.StatusFail
		case models.StatusWarn:
			hasWarn = true
		}
	}

	if hasWarn {
		if strict {
			return models.StatusFail
		}
		return models.StatusWarn
	}
	return models.StatusPass
}

// FormatDelta renders a delta with an explicit sign.
func FormatDelta(delta float64, unit string) string {
	if delta == 0 {
		return "0"
	}
	if unit == "percent" {
		return fmt.Sprintf("%+.2f%%", delta)
	}
	if delta == math.Trunc(delta) {
		return fmt.Sprintf("%+d", int64(delta))
	}
	return fmt.Sprintf("%+.2f", delta)
}

// round trims floating point noise so that 80.1-80.0 compares as 0.1.
func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// TrackedMetricNames lists every metric the comparator knows about, in display order.
func TrackedMetricNames() []string {
	names := make([]string, 0, len(trackedMetrics))
	for _, tm := range trackedMetrics {
		names = append(names, tm.Name)
	}
	return names
}

// GetDefaultBaselinePath returns the default baseline location inside a metrics directory.
func GetDefaultBaselinePath(metricsDir string) string {
	if metricsDir == "" {
		metricsDir = ".metrics"
	}
	return filepath.Join(metricsDir, "baseline.json")
}

// GetDefaultCurrentPath returns the default location for a freshly captured snapshot.
func GetDefaultCurrentPath(metricsDir string) string {
	if metricsDir == "" {
		metricsDir = ".metrics"
	}
	return filepath.Join(metricsDir, "current.json")
}
