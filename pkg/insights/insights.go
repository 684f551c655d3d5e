package insights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mikematt33/qgate/pkg/models"
)

type InsightLevel string

const (
	LevelInfo     InsightLevel = "INFO"
	LevelWarning  InsightLevel = "WARNING"
	LevelCritical InsightLevel = "CRITICAL"
)

type Insight struct {
	Level       InsightLevel
	Metric      string
	Category    string
	Description string
	Action      string
}

// String renders the insight as a single recommendation line.
func (i Insight) String() string {
	if i.Action == "" {
		return i.Description
	}
	return i.Description + " " + i.Action
}

type advice struct {
	category string
	action   string
}

// adviceFor maps a metric family (the part before the dot) to remediation text.
var adviceFor = map[string]advice{
	"eslint": {
		category: "Lint",
		action:   "Run `npx eslint --fix` for auto-fixable problems and resolve the remaining reports before merging.",
	},
	"duplication": {
		category: "Duplication",
		action:   "Extract the duplicated blocks reported by jscpd into shared functions or modules.",
	},
	"coverage": {
		category: "Coverage",
		action:   "Add tests for the code paths touched by this change until coverage returns to the baseline.",
	},
	"security": {
		category: "Security",
		action:   "Run `npm audit fix` or upgrade the affected packages; review advisories that need a breaking upgrade.",
	},
	"techDebt": {
		category: "Tech Debt",
		action:   "Resolve the new TODO/FIXME/HACK markers or track them as issues instead of code comments.",
	},
	"dependencies": {
		category: "Dependencies",
		action:   "Run `npm outdated` and schedule upgrades, starting with patch and minor updates.",
	},
}

// GenerateInsights turns every failing or warning metric into an insight.
// Failures are listed before warnings, each group in display order.
func GenerateInsights(result *models.ComparisonResult) []Insight {
	if result == nil {
		return nil
	}

	var critical, warnings []Insight
	for _, name := range result.Names() {
		m, ok := result.Metrics[name]
		if !ok || m.Status == models.StatusPass {
			continue
		}

		family := name
		if idx := strings.Index(name, "."); idx > 0 {
			family = name[:idx]
		}
		adv, ok := adviceFor[family]
		if !ok {
			adv = advice{category: family, action: "Investigate the regression before merging."}
		}

		ins := Insight{
			Metric:      name,
			Category:    adv.category,
			Description: describe(name, m),
			Action:      adv.action,
		}
		if m.Status == models.StatusFail {
			ins.Level = LevelCritical
			critical = append(critical, ins)
		} else {
			ins.Level = LevelWarning
			warnings = append(warnings, ins)
		}
	}

	insights := append(critical, warnings...)

	for _, name := range sortedKeys(result.Incomparable) {
		insights = append(insights, Insight{
			Level:       LevelInfo,
			Metric:      name,
			Category:    "Incomparable",
			Description: fmt.Sprintf("%s was not compared (%s).", name, result.Incomparable[name]),
			Action:      "Re-run the capture with the tool available to gate this metric.",
		})
	}

	return insights
}

// Recommend returns recommendation lines for a comparison result.
func Recommend(result *models.ComparisonResult) []string {
	insights := GenerateInsights(result)

	recs := make([]string, 0, len(insights)+1)
	for _, ins := range insights {
		recs = append(recs, ins.String())
	}

	if result != nil && result.Overall == models.StatusPass {
		recs = append(recs, "All quality gates passed. Consider promoting the current snapshot to the new baseline.")
	}
	if result != nil && result.Strict && result.Overall == models.StatusFail && result.Count(models.StatusFail) == 0 {
		recs = append(recs, "Strict mode treats warnings as failures; fix the warnings above or re-run without --strict.")
	}

	return recs
}

func describe(name string, m models.MetricDelta) string {
	verb := "increased"
	if m.Delta < 0 {
		verb = "decreased"
	}
	limit := fmt.Sprintf("threshold %g", m.Threshold)
	if m.Status == models.StatusWarn && m.Threshold == 0 {
		limit = "informational"
	}
	return fmt.Sprintf("%s %s by %s (%g → %g, %s).", name, verb, strings.TrimLeft(m.FormattedDelta, "+-"), m.Before, m.After, limit)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
