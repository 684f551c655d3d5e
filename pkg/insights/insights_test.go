package insights

import (
	"strings"
	"testing"

	"github.com/mikematt33/qgate/pkg/models"
)

func TestGenerateInsights(t *testing.T) {
	result := &models.ComparisonResult{
		Order: []string{"eslint.errors", "eslint.warnings", "coverage.lines", "duplication.percentage"},
		Metrics: map[string]models.MetricDelta{
			"eslint.errors":          {Before: 0, After: 3, Delta: 3, FormattedDelta: "+3", Status: models.StatusFail},
			"eslint.warnings":        {Before: 1, After: 4, Delta: 3, FormattedDelta: "+3", Status: models.StatusWarn},
			"coverage.lines":         {Before: 80, After: 78, Delta: -2, FormattedDelta: "-2.00%", Status: models.StatusWarn, Threshold: 5},
			"duplication.percentage": {Before: 3, After: 1, Delta: -2, FormattedDelta: "-2.00%", Status: models.StatusPass},
		},
		Incomparable: map[string]string{"security.high": "disabled by flag"},
		Overall:      models.StatusFail,
	}

	got := GenerateInsights(result)
	if len(got) != 4 {
		t.Fatalf("expected 4 insights, got %d: %+v", len(got), got)
	}

	if got[0].Level != LevelCritical || got[0].Metric != "eslint.errors" {
		t.Errorf("expected failing lint first, got %+v", got[0])
	}
	if got[1].Metric != "eslint.warnings" || got[2].Metric != "coverage.lines" {
		t.Errorf("expected warnings in display order, got %s, %s", got[1].Metric, got[2].Metric)
	}
	if !strings.Contains(got[1].Description, "informational") {
		t.Errorf("expected zero-threshold warning to be labelled informational: %s", got[1].Description)
	}
	if !strings.Contains(got[2].Description, "decreased by 2.00%") {
		t.Errorf("unexpected coverage description: %s", got[2].Description)
	}
	if got[3].Level != LevelInfo || got[3].Category != "Incomparable" {
		t.Errorf("expected incomparable info last, got %+v", got[3])
	}
}

func TestRecommendPass(t *testing.T) {
	result := &models.ComparisonResult{
		Metrics: map[string]models.MetricDelta{"eslint.errors": {Status: models.StatusPass}},
		Overall: models.StatusPass,
	}

	recs := Recommend(result)
	if len(recs) != 1 || !strings.Contains(recs[0], "All quality gates passed") {
		t.Errorf("unexpected recommendations: %v", recs)
	}
}

func TestRecommendStrictNote(t *testing.T) {
	result := &models.ComparisonResult{
		Metrics: map[string]models.MetricDelta{"eslint.warnings": {Status: models.StatusWarn, FormattedDelta: "+1", Delta: 1}},
		Overall: models.StatusFail,
		Strict:  true,
	}

	recs := Recommend(result)
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %v", recs)
	}
	if !strings.Contains(recs[1], "Strict mode") {
		t.Errorf("expected strict-mode note, got %q", recs[1])
	}
}

func TestRecommendNil(t *testing.T) {
	if recs := Recommend(nil); len(recs) != 0 {
		t.Errorf("expected no recommendations for nil result, got %v", recs)
	}
}
