package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/mikematt33/qgate/pkg/models"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// Formats lists the accepted --format values.
var Formats = []string{string(FormatText), string(FormatJSON), string(FormatMarkdown)}

// ParseFormat validates a --format value. An empty string selects text.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatMarkdown:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format %q (want text, json or markdown)", s)
}

// RenderOptions contains options for rendering reports
type RenderOptions struct {
	NoColor bool
	// Now stamps the markdown footer; defaults to time.Now.
	Now func() time.Time
}

// Renderer writes a comparison result in one output format.
type Renderer interface {
	Render(result *models.ComparisonResult, w io.Writer) error
}

func NewRenderer(f Format, opts RenderOptions) Renderer {
	switch f {
	case FormatJSON:
		return &JSONRenderer{}
	case FormatMarkdown:
		return &MarkdownRenderer{opts: opts}
	default:
		return &TextRenderer{opts: opts}
	}
}

type JSONRenderer struct{}

func (r *JSONRenderer) Render(result *models.ComparisonResult, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// TextRenderer prints the colored per-metric console table.
type TextRenderer struct {
	opts RenderOptions
}

func (r *TextRenderer) Render(result *models.ComparisonResult, w io.Writer) error {
	if result == nil {
		_, _ = fmt.Fprintln(w, "Nothing to compare.")
		return nil
	}
	p := newPalette(r.opts.NoColor)

	_, _ = fmt.Fprintln(w, p.bold.Sprint("Metrics comparison"))
	_, _ = fmt.Fprintf(w, "Baseline: %s\n", describeRef(result.Baseline))
	_, _ = fmt.Fprintf(w, "Current:  %s\n", describeRef(result.Current))
	_, _ = fmt.Fprintln(w, "")

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "METRIC\tBEFORE\tAFTER\tDELTA\tSTATUS")
	_, _ = fmt.Fprintln(tw, "------\t------\t-----\t-----\t------")
	for _, name := range result.Names() {
		m := result.Metrics[name]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			name,
			FormatValue(m.Before, m.Unit),
			FormatValue(m.After, m.Unit),
			m.FormattedDelta,
			p.status(m.Status))
	}
	_ = tw.Flush()

	if len(result.Incomparable) > 0 {
		_, _ = fmt.Fprintln(w, "")
		_, _ = fmt.Fprintln(w, "Not compared:")
		for _, name := range sortedKeys(result.Incomparable) {
			_, _ = fmt.Fprintf(w, "  - %s: %s\n", name, result.Incomparable[name])
		}
	}

	_, _ = fmt.Fprintln(w, "")
	overall := fmt.Sprintf("Overall: %s (%d pass, %d warn, %d fail)",
		p.status(result.Overall),
		result.Count(models.StatusPass), result.Count(models.StatusWarn), result.Count(models.StatusFail))
	if result.Strict {
		overall += " [strict]"
	}
	_, _ = fmt.Fprintln(w, overall)

	if len(result.Recommendations) > 0 {
		_, _ = fmt.Fprintln(w, "")
		_, _ = fmt.Fprintln(w, "Recommendations:")
		for _, rec := range result.Recommendations {
			_, _ = fmt.Fprintf(w, "  • %s\n", rec)
		}
	}
	return nil
}

type palette struct {
	bold, pass, warn, fail *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		bold: color.New(color.Bold),
		pass: color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed, color.Bold),
	}
	if noColor || color.NoColor {
		for _, c := range []*color.Color{p.bold, p.pass, p.warn, p.fail} {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) status(s models.Status) string {
	switch s {
	case models.StatusPass:
		return p.pass.Sprint("PASS")
	case models.StatusWarn:
		return p.warn.Sprint("WARN")
	case models.StatusFail:
		return p.fail.Sprint("FAIL")
	}
	return string(s)
}

func describeRef(ref models.SnapshotRef) string {
	commit := ref.Git.Commit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	if commit == "" {
		commit = "unknown"
	}
	s := fmt.Sprintf("%s @ %s", commit, ref.Timestamp.Format(time.RFC3339))
	if ref.Git.Dirty {
		s += " (dirty)"
	}
	if ref.Path != "" {
		s += "  " + ref.Path
	}
	return s
}

// FormatValue renders a metric value for tables. Percentages keep every
// significant digit so that rendered tables can be parsed back exactly.
func FormatValue(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if unit == "percent" {
		return s + "%"
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
