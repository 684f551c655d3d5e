package refactor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mikematt33/qgate/pkg/models"
)

var (
	bannerTitle = lipgloss.NewStyle().Bold(true)
	bannerLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	bannerCard  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	outcomeColors = map[models.Outcome]lipgloss.Color{
		models.OutcomeSucceeded:      lipgloss.Color("#00FF00"),
		models.OutcomeAborted:        lipgloss.Color("#FFA500"),
		models.OutcomeRolledBack:     lipgloss.Color("#FFA500"),
		models.OutcomeRollbackFailed: lipgloss.Color("#FF0000"),
	}
)

// Summary renders the end-of-run banner.
func Summary(run *models.RefactorRun) string {
	color, ok := outcomeColors[run.Outcome]
	if !ok {
		color = lipgloss.Color("238")
	}

	title := "SAFE REFACTOR " + strings.ToUpper(strings.ReplaceAll(string(run.Outcome), "_", " "))
	if run.DryRun {
		title = "SAFE REFACTOR DRY RUN"
	}

	rows := [][2]string{
		{"Run", run.ID},
		{"Description", run.Description},
		{"Phase", string(run.Phase)},
		{"Duration", run.Duration},
		{"Exit code", fmt.Sprintf("%d", run.ExitCode)},
	}
	if run.Error != "" {
		rows = append(rows, [2]string{"Error", run.Error})
	}
	if run.BackupBranch != "" {
		state := "deleted"
		if run.BackupKept {
			state = "kept"
		}
		rows = append(rows, [2]string{"Backup", run.BackupBranch + " (" + state + ")"})
	}
	if run.Comparison != nil {
		rows = append(rows, [2]string{"Metrics", string(run.Comparison.Overall)})
	}
	if run.LogPath != "" {
		rows = append(rows, [2]string{"Log", run.LogPath})
	}

	lines := []string{bannerTitle.Foreground(color).Render(title), ""}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s", bannerLabel.Render(fmt.Sprintf("%-12s", r[0])), r[1]))
	}
	if run.Outcome == models.OutcomeRollbackFailed {
		lines = append(lines, "", "Manual intervention required: the tree may not match the backup.")
	}
	return bannerCard.BorderForeground(color).Render(strings.Join(lines, "\n"))
}
