package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// renderTable lays rows out in a bordered table.
func renderTable(styles Styles, headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.Border).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.HeadCell
			}
			return styles.Cell
		}).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}

// resultRows converts entity results into table rows.
func resultRows(styles Styles, entities []EntityStats) [][]string {
	rows := make([][]string, 0, len(entities))
	for _, e := range entities {
		status := styles.Success.Render("ok")
		if e.Err != nil {
			status = styles.Error.Render("failed")
		}
		rows = append(rows, []string{
			e.Entity,
			fmt.Sprintf("%d", e.Rows),
			fmt.Sprintf("%d", e.Inserts),
			fmt.Sprintf("%d", e.Updates),
			fmt.Sprintf("%d", e.Deletes),
			formatDuration(e.Duration),
			status,
		})
	}
	return rows
}

var resultHeaders = []string{"Entity", "Rows", "Inserts", "Updates", "Deletes", "Time", "Status"}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
