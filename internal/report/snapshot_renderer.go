package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mikematt33/qgate/pkg/models"
)

// RenderSnapshot prints the summary shown after a capture. Markdown falls
// back to text; snapshots are only tabulated in comparisons.
func RenderSnapshot(snap *models.Snapshot, f Format, w io.Writer) error {
	if f == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	_, _ = fmt.Fprintf(w, "Snapshot %s", snap.Timestamp.Format(time.RFC3339))
	if snap.Git.Commit != "" {
		dirty := ""
		if snap.Git.Dirty {
			dirty = ", dirty"
		}
		_, _ = fmt.Fprintf(w, " (%s on %s%s)", shortSHA(snap.Git.Commit), snap.Git.Branch, dirty)
	}
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "Targets: %s\n\n", strings.Join(snap.Targets, ", "))

	m := snap.Metrics
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	section(tw, "eslint", m.ESLint.Collection,
		fmt.Sprintf("%d errors, %d warnings, %d fixable in %d files", m.ESLint.Errors, m.ESLint.Warnings, m.ESLint.Fixable, m.ESLint.Files))
	section(tw, "duplication", m.Duplication.Collection,
		fmt.Sprintf("%s duplicated (%d clones, %d lines)", FormatValue(m.Duplication.Percentage, "percent"), m.Duplication.Clones, m.Duplication.Lines))
	section(tw, "coverage", m.Coverage.Collection,
		fmt.Sprintf("lines %s, branches %s, functions %s", pctOrNA(m.Coverage.Lines), pctOrNA(m.Coverage.Branches), pctOrNA(m.Coverage.Functions)))
	section(tw, "security", m.Security.Collection,
		fmt.Sprintf("%d critical, %d high, %d moderate, %d low (%d total)", m.Security.Critical, m.Security.High, m.Security.Moderate, m.Security.Low, m.Security.Total))
	section(tw, "techDebt", m.TechDebt.Collection,
		fmt.Sprintf("%d markers (%d TODO, %d FIXME, %d HACK)", m.TechDebt.TotalDebt, m.TechDebt.TodoCount, m.TechDebt.FixmeCount, m.TechDebt.HackCount))
	section(tw, "dependencies", m.Dependencies.Collection,
		fmt.Sprintf("%d outdated (%d major, %d minor, %d patch)", m.Dependencies.OutdatedCount, m.Dependencies.MajorUpdates, m.Dependencies.MinorUpdates, m.Dependencies.PatchUpdates))
	return tw.Flush()
}

func section(w io.Writer, name string, c models.Collection, summary string) {
	if c.Skipped {
		summary = "skipped: " + c.SkipReason
	}
	_, _ = fmt.Fprintf(w, "  %s:\t%s\n", name, summary)
}

func pctOrNA(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return FormatValue(*v, "percent")
}
