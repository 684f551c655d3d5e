package models

import (
	"time"
)

// SchemaVersion is written into every snapshot produced by this build.
const SchemaVersion = "1.0"

// Snapshot is one point-in-time measurement pass over a project.
// Once written to disk it is treated as immutable.
type Snapshot struct {
	SchemaVersion string            `json:"schemaVersion"`
	Timestamp     time.Time         `json:"timestamp"`
	Git           GitInfo           `json:"git"`
	Targets       []string          `json:"targets"`
	Metrics       Metrics           `json:"metrics"`
	ToolVersions  map[string]string `json:"toolVersions"`
}

// GitInfo identifies the working tree state a snapshot was taken from.
type GitInfo struct {
	Commit string `json:"commit"`
	Branch string `json:"branch"`
	Dirty  bool   `json:"dirty"`
}

// Collection tags a sub-record as collected or skipped.
// A skipped sub-record must never be compared against another snapshot.
type Collection struct {
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skipReason,omitempty"`
}

// IsSkipped reports whether the sub-record was not collected.
func (c Collection) IsSkipped() bool { return c.Skipped }

// Skip returns a Collection marked as skipped for the given reason.
func Skip(reason string) Collection {
	if reason == "" {
		reason = "not collected"
	}
	return Collection{Skipped: true, SkipReason: reason}
}

// Metrics groups all sub-records of a snapshot.
type Metrics struct {
	ESLint       ESLintMetrics      `json:"eslint"`
	Duplication  DuplicationMetrics `json:"duplication"`
	Coverage     CoverageMetrics    `json:"coverage"`
	Security     SecurityMetrics    `json:"security"`
	TechDebt     TechDebtMetrics    `json:"techDebt"`
	Dependencies DependencyMetrics  `json:"dependencies"`
}

type ESLintMetrics struct {
	Collection
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Fixable  int `json:"fixable"`
	Files    int `json:"files"`
}

type DuplicationMetrics struct {
	Collection
	Percentage float64 `json:"percentage"`
	Clones     int     `json:"clones"`
	Sources    int     `json:"sources"`
	Lines      int     `json:"lines"`
}

// CoverageMetrics holds percentages; nil means the value was not reported.
type CoverageMetrics struct {
	Collection
	Lines     *float64 `json:"lines"`
	Branches  *float64 `json:"branches"`
	Functions *float64 `json:"functions"`
}

type SecurityMetrics struct {
	Collection
	Critical int `json:"critical"`
	High     int `json:"high"`
	Moderate int `json:"moderate"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

type TechDebtMetrics struct {
	Collection
	TodoCount  int `json:"todoCount"`
	FixmeCount int `json:"fixmeCount"`
	HackCount  int `json:"hackCount"`
	TotalDebt  int `json:"totalDebt"`
}

type DependencyMetrics struct {
	Collection
	OutdatedCount int `json:"outdatedCount"`
	MajorUpdates  int `json:"majorUpdates"`
	MinorUpdates  int `json:"minorUpdates"`
	PatchUpdates  int `json:"patchUpdates"`
}

// Float returns a pointer to v, for populating optional coverage values.
func Float(v float64) *float64 {
	return &v
}
