package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes the mirror indexes of a process.
type StatusInfo struct {
	Process  string         `json:"process"`
	Folder   string         `json:"folder"`
	Entities []EntityStatus `json:"entities"`
}

// EntityStatus describes one entity's mirror index.
type EntityStatus struct {
	Entity     string    `json:"entity"`
	Path       string    `json:"path"`
	Documents  uint64    `json:"documents"`
	Active     uint64    `json:"active"`
	MaxKey     int64     `json:"max_key"`
	MaxVersion string    `json:"max_version,omitempty"`
	Size       int64     `json:"size"`
	Modified   time.Time `json:"modified"`
	// State is "ready", "empty", "locked" or "error".
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// Flagged counts documents marked deleted.
func (e EntityStatus) Flagged() uint64 {
	if e.Active > e.Documents {
		return 0
	}
	return e.Documents - e.Active
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n", r.styles.Header.Render("Mirror Status: "+info.Process))
	_, _ = fmt.Fprintf(r.out, "%s %s\n\n", r.styles.Label.Render("Folder:"), info.Folder)

	rows := make([][]string, 0, len(info.Entities))
	for _, e := range info.Entities {
		updated := "-"
		if !e.Modified.IsZero() {
			updated = formatTime(e.Modified)
		}
		version := e.MaxVersion
		if version == "" {
			version = "-"
		}
		rows = append(rows, []string{
			e.Entity,
			fmt.Sprintf("%d", e.Documents),
			fmt.Sprintf("%d", e.Active),
			fmt.Sprintf("%d", e.Flagged()),
			fmt.Sprintf("%d", e.MaxKey),
			version,
			FormatBytes(e.Size),
			updated,
			r.renderState(e.State),
		})
	}
	headers := []string{"Entity", "Docs", "Active", "Deleted", "Max Key", "Max Version", "Size", "Updated", "State"}
	_, err := fmt.Fprintln(r.out, renderTable(r.styles, headers, rows))
	for _, e := range info.Entities {
		if e.Error != "" {
			_, _ = fmt.Fprintf(r.out, "%s %s: %s\n", r.styles.Error.Render("error"), e.Entity, e.Error)
		}
	}
	return err
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderState formats a state string with color.
func (r *StatusRenderer) renderState(state string) string {
	switch state {
	case "ready":
		return r.styles.Success.Render(state)
	case "empty", "locked":
		return r.styles.Warning.Render(state)
	case "error":
		return r.styles.Error.Render(state)
	default:
		return state
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
