package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/becauseimclever/budgetexperiment/internal/model"
)

const tableDateLayout = "2006-01-02"

// RenderOccurrenceTable renders projected occurrences as an aligned table.
func RenderOccurrenceTable(occurrences []model.ProjectedOccurrence) string {
	if len(occurrences) == 0 {
		return SubtleStyle.Render("No occurrences in window.")
	}

	rows := make([][]string, 0, len(occurrences))
	for _, occ := range occurrences {
		flags := occurrenceFlags(occ)
		rows = append(rows, []string{
			occ.EffectiveDate.Format(tableDateLayout),
			fmt.Sprintf("%d", occ.RuleID),
			occ.Description,
			occ.Amount.StringFixed(2),
			flags,
		})
	}

	return renderTable([]string{"DATE", "RULE", "DESCRIPTION", "AMOUNT", "FLAGS"}, rows)
}

// RenderMatchTable renders reconciliation matches as an aligned table.
func RenderMatchTable(matches []model.ReconciliationMatch) string {
	if len(matches) == 0 {
		return SubtleStyle.Render("No matches.")
	}

	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{
			m.ID,
			m.ActualTransactionID,
			fmt.Sprintf("%d @ %s", m.Instance.RuleID, m.Instance.ScheduledDate.Format(tableDateLayout)),
			string(m.Kind),
			string(m.Status),
			fmt.Sprintf("%.2f", m.ConfidenceScore),
		})
	}

	return renderTable([]string{"MATCH", "TRANSACTION", "INSTANCE", "KIND", "STATUS", "SCORE"}, rows)
}

func occurrenceFlags(occ model.ProjectedOccurrence) string {
	var flags []string
	if occ.IsModified {
		flags = append(flags, "modified")
	}
	if occ.IsRealized {
		flags = append(flags, "realized")
	}
	if occ.IsPastDue {
		flags = append(flags, "past-due")
	}
	return strings.Join(flags, ",")
}

// renderTable renders headers and rows with column alignment.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var sb strings.Builder
	headerCells := make([]string, len(headers))
	for i, h := range headers {
		headerCells[i] = TableCellStyle.Width(widths[i] + 2).Render(h)
	}
	sb.WriteString(TableHeaderStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, headerCells...)))
	sb.WriteString("\n")

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		sb.WriteString("\n")
	}

	return sb.String()
}
