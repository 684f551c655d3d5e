package report

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mikematt33/qgate/pkg/models"
)

const metricsTableHeader = "| Metric | Before | After | Delta | Status |"

// MarkdownRenderer renders comparison reports suitable for PR comments and CI summaries.
type MarkdownRenderer struct {
	opts RenderOptions
}

func (r *MarkdownRenderer) Render(result *models.ComparisonResult, w io.Writer) error {
	if result == nil {
		_, _ = fmt.Fprintln(w, "## 📊 Quality Gate Report")
		_, _ = fmt.Fprintln(w, "")
		_, _ = fmt.Fprintln(w, "Nothing to compare.")
		return nil
	}

	_, _ = fmt.Fprintf(w, "## %s Quality Gate Report: %s\n\n", statusEmoji(result.Overall), strings.ToUpper(string(result.Overall)))
	if result.Strict {
		_, _ = fmt.Fprintln(w, "_Strict mode: warnings fail the gate._")
		_, _ = fmt.Fprintln(w, "")
	}

	_, _ = fmt.Fprintln(w, "### Snapshots")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "| | Baseline | Current |")
	_, _ = fmt.Fprintln(w, "|---|---|---|")
	_, _ = fmt.Fprintf(w, "| Commit | %s | %s |\n", orDash(shortSHA(result.Baseline.Git.Commit)), orDash(shortSHA(result.Current.Git.Commit)))
	_, _ = fmt.Fprintf(w, "| Branch | %s | %s |\n", orDash(result.Baseline.Git.Branch), orDash(result.Current.Git.Branch))
	_, _ = fmt.Fprintf(w, "| Dirty | %t | %t |\n", result.Baseline.Git.Dirty, result.Current.Git.Dirty)
	_, _ = fmt.Fprintf(w, "| Timestamp | %s | %s |\n",
		result.Baseline.Timestamp.Format(time.RFC3339), result.Current.Timestamp.Format(time.RFC3339))
	_, _ = fmt.Fprintln(w, "")

	_, _ = fmt.Fprintln(w, "### Metrics")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, metricsTableHeader)
	_, _ = fmt.Fprintln(w, "|--------|--------|-------|-------|--------|")
	for _, name := range result.Names() {
		m := result.Metrics[name]
		_, _ = fmt.Fprintf(w, "| %s | %s | %s | %s | %s %s |\n",
			name,
			FormatValue(m.Before, m.Unit),
			FormatValue(m.After, m.Unit),
			signedValue(m.Delta, m.Unit),
			statusEmoji(m.Status), m.Status)
	}
	_, _ = fmt.Fprintln(w, "")

	if len(result.Incomparable) > 0 {
		_, _ = fmt.Fprintln(w, "<details>")
		_, _ = fmt.Fprintf(w, "<summary><b>Not compared</b> (%d metrics)</summary>\n\n", len(result.Incomparable))
		for _, name := range sortedKeys(result.Incomparable) {
			_, _ = fmt.Fprintf(w, "- **%s:** %s\n", name, result.Incomparable[name])
		}
		_, _ = fmt.Fprintln(w, "</details>")
		_, _ = fmt.Fprintln(w, "")
	}

	t := result.Thresholds
	_, _ = fmt.Fprintln(w, "### Thresholds")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "| Threshold | Value |")
	_, _ = fmt.Fprintln(w, "|-----------|-------|")
	_, _ = fmt.Fprintf(w, "| Coverage decrease | %g%% |\n", t.CoverageDecrease)
	_, _ = fmt.Fprintf(w, "| Duplication increase | %g%% |\n", t.DuplicationIncrease)
	_, _ = fmt.Fprintf(w, "| Lint error increase | %g |\n", t.LintErrorIncrease)
	_, _ = fmt.Fprintf(w, "| Lint warning increase | %g |\n", t.LintWarningIncrease)
	_, _ = fmt.Fprintf(w, "| Security increase | %g |\n", t.SecurityIncrease)
	_, _ = fmt.Fprintf(w, "| Tech debt increase | %g |\n", t.TechDebtIncrease)
	_, _ = fmt.Fprintf(w, "| Outdated increase | %g |\n", t.OutdatedIncrease)
	_, _ = fmt.Fprintln(w, "")

	if len(result.Recommendations) > 0 {
		_, _ = fmt.Fprintln(w, "### 💡 Recommendations")
		_, _ = fmt.Fprintln(w, "")
		for _, rec := range result.Recommendations {
			_, _ = fmt.Fprintf(w, "- %s\n", rec)
		}
		_, _ = fmt.Fprintln(w, "")
	}

	now := time.Now
	if r.opts.Now != nil {
		now = r.opts.Now
	}
	_, _ = fmt.Fprintln(w, "---")
	_, _ = fmt.Fprintf(w, "<sub>Generated by qgate at %s</sub>\n", now().Format("2006-01-02 15:04:05"))
	return nil
}

// ParsedMetric is one row read back from a rendered metrics table.
type ParsedMetric struct {
	Before float64
	After  float64
	Delta  float64
	Status models.Status
}

// ParseMarkdownMetrics reads the metrics table of a rendered markdown report.
func ParseMarkdownMetrics(r io.Reader) (map[string]ParsedMetric, error) {
	out := make(map[string]ParsedMetric)
	inTable := false
	found := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !inTable {
			if line == metricsTableHeader {
				inTable, found = true, true
			}
			continue
		}
		if !strings.HasPrefix(line, "|") {
			break
		}
		if strings.HasPrefix(line, "|--") {
			continue
		}

		cells := splitRow(line)
		if len(cells) != 5 {
			return nil, fmt.Errorf("malformed metrics row %q", line)
		}

		var pm ParsedMetric
		var err error
		if pm.Before, err = parseValue(cells[1]); err != nil {
			return nil, fmt.Errorf("%s before: %w", cells[0], err)
		}
		if pm.After, err = parseValue(cells[2]); err != nil {
			return nil, fmt.Errorf("%s after: %w", cells[0], err)
		}
		if pm.Delta, err = parseValue(cells[3]); err != nil {
			return nil, fmt.Errorf("%s delta: %w", cells[0], err)
		}
		fields := strings.Fields(cells[4])
		if len(fields) == 0 {
			return nil, fmt.Errorf("%s: missing status", cells[0])
		}
		pm.Status = models.Status(fields[len(fields)-1])
		out[cells[0]] = pm
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no metrics table found")
	}
	return out, nil
}

func splitRow(line string) []string {
	line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	return strconv.ParseFloat(strings.TrimPrefix(s, "+"), 64)
}

// signedValue is FormatValue with an explicit sign for non-zero values.
func signedValue(v float64, unit string) string {
	if v == 0 {
		return "0"
	}
	s := FormatValue(v, unit)
	if v > 0 {
		return "+" + s
	}
	return s
}

func statusEmoji(s models.Status) string {
	switch s {
	case models.StatusPass:
		return "✅"
	case models.StatusWarn:
		return "⚠️"
	case models.StatusFail:
		return "❌"
	}
	return "📊"
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
