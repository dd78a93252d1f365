package ui

import "github.com/charmbracelet/lipgloss"

// Color palette
const (
	ColorLime     = "154" // Primary accent (#AFFF00)
	ColorLimeDim  = "106" // Dimmed lime for inactive/borders
	ColorWhite    = "255" // Headers, important text
	ColorGray     = "245" // Secondary text, labels
	ColorDarkGray = "238" // Box borders, separators
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings
)

// Styles holds all UI styles.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Stage   lipgloss.Style
	Label   lipgloss.Style

	// Table styles
	Border   lipgloss.Style
	Cell     lipgloss.Style
	HeadCell lipgloss.Style
}

// DefaultStyles returns styled components for terminals.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Stage:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLimeDim)),
		Label:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Border:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Cell:     lipgloss.NewStyle().Padding(0, 1),
		HeadCell: lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color(ColorWhite)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle(),
		Success:  lipgloss.NewStyle(),
		Warning:  lipgloss.NewStyle(),
		Error:    lipgloss.NewStyle(),
		Dim:      lipgloss.NewStyle(),
		Stage:    lipgloss.NewStyle(),
		Label:    lipgloss.NewStyle(),
		Border:   lipgloss.NewStyle(),
		Cell:     lipgloss.NewStyle().Padding(0, 1),
		HeadCell: lipgloss.NewStyle().Padding(0, 1),
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
