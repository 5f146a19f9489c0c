package report

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	rowStyle    = lipgloss.NewStyle().Padding(0, 1)
	sepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Render renders Counts as a two-column terminal table: one row per
// entity, the pipeline's end-of-run status summary.
func Render(c Counts) string {
	headers := []string{"entity", "count"}
	rows := [][]string{
		{"jobs", strconv.FormatInt(c.Jobs, 10)},
		{"builds", strconv.FormatInt(c.Builds, 10)},
		{"runs", strconv.FormatInt(c.Runs, 10)},
		{"artifacts", strconv.FormatInt(c.Artifacts, 10)},
		{"findings", strconv.FormatInt(c.Findings, 10)},
		{"similarity groups", strconv.FormatInt(c.SimilarityGroups, 10)},
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > colWidths[i] {
				colWidths[i] = w
			}
		}
	}
	for i := range colWidths {
		colWidths[i] += 2
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("buildpulse summary"))
	sb.WriteString("\n")

	for i, h := range headers {
		sb.WriteString(headerStyle.Width(colWidths[i]).Render(h))
		if i < len(headers)-1 {
			sb.WriteString(sepStyle.Render("|"))
		}
	}
	sb.WriteString("\n")

	total := len(headers) - 1
	for _, w := range colWidths {
		total += w
	}
	sb.WriteString(sepStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")

	for _, row := range rows {
		for i, cell := range row {
			sb.WriteString(rowStyle.Width(colWidths[i]).Render(cell))
			if i < len(row)-1 {
				sb.WriteString(sepStyle.Render("|"))
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
