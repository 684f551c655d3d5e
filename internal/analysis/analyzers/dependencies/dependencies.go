package dependencies

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikematt33/qgate/internal/analysis"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
	"golang.org/x/mod/semver"
)

type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Name() string {
	return "dependencies"
}

// outdatedEntry is one package in `npm outdated --json`.
type outdatedEntry struct {
	Current string `json:"current"`
	Wanted  string `json:"wanted"`
	Latest  string `json:"latest"`
}

// UpdateKind classifies the gap between the installed and the latest version.
type UpdateKind int

const (
	UpdateUnknown UpdateKind = iota
	UpdatePatch
	UpdateMinor
	UpdateMajor
)

func (a *Analyzer) Analyze(ctx context.Context, tc *toolchain.Context, cfg analysis.Config, m *models.Metrics) error {
	cmd, err := analysis.CommandLine(cfg.Tools.Outdated)
	if err != nil {
		return fmt.Errorf("npm outdated: %w", err)
	}
	cmd.Timeout = analysis.DefaultToolTimeout

	res, err := tc.Run(ctx, cmd)
	if err != nil {
		return err
	}

	// Exit 1 is how npm reports that something is outdated.
	if res.ExitCode > 1 {
		return analysis.OutputError("npm outdated", res, fmt.Errorf("exit code %d", res.ExitCode))
	}

	metrics, err := Parse(res.Stdout)
	if err != nil {
		return analysis.OutputError("npm outdated", res, err)
	}
	m.Dependencies = metrics
	return nil
}

// Parse counts outdated packages and classifies each update.
// npm 7+ reports an array per package when several workspaces depend on it;
// each package is counted once using its first entry.
func Parse(stdout string) (models.DependencyMetrics, error) {
	var out models.DependencyMetrics

	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return out, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return out, fmt.Errorf("failed to parse npm outdated output: %w", err)
	}
	if _, isErr := raw["error"]; isErr {
		return out, fmt.Errorf("npm outdated reported an error")
	}

	for name, msg := range raw {
		entry, err := decodeEntry(msg)
		if err != nil {
			return out, fmt.Errorf("package %s: %w", name, err)
		}

		out.OutdatedCount++
		switch Classify(entry.Current, entry.Latest) {
		case UpdateMajor:
			out.MajorUpdates++
		case UpdateMinor:
			out.MinorUpdates++
		case UpdatePatch:
			out.PatchUpdates++
		}
	}
	return out, nil
}

func decodeEntry(msg json.RawMessage) (outdatedEntry, error) {
	var entry outdatedEntry
	if err := json.Unmarshal(msg, &entry); err == nil {
		return entry, nil
	}

	var entries []outdatedEntry
	if err := json.Unmarshal(msg, &entries); err != nil {
		return entry, fmt.Errorf("unexpected entry shape: %w", err)
	}
	if len(entries) == 0 {
		return entry, fmt.Errorf("empty entry list")
	}
	return entries[0], nil
}

// Classify compares two npm versions with semver rules.
// A package that is not installed, or has no valid version, is UpdateUnknown.
func Classify(current, latest string) UpdateKind {
	cur, lat := canonical(current), canonical(latest)
	if cur == "" || lat == "" || semver.Compare(cur, lat) >= 0 {
		return UpdateUnknown
	}

	switch {
	case semver.Major(cur) != semver.Major(lat):
		return UpdateMajor
	case semver.MajorMinor(cur) != semver.MajorMinor(lat):
		return UpdateMinor
	default:
		return UpdatePatch
	}
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

func (a *Analyzer) Skip(m *models.Metrics, reason string) {
	m.Dependencies = models.DependencyMetrics{Collection: models.Skip(reason)}
}
