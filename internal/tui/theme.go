package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha, the subset the import views use.
const (
	colorPink     lipgloss.Color = "#f5c2e7"
	colorRed      lipgloss.Color = "#f38ba8"
	colorPeach    lipgloss.Color = "#fab387"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorTeal     lipgloss.Color = "#94e2d5"
	colorLavender lipgloss.Color = "#b4befe"
	colorText     lipgloss.Color = "#cdd6f4"
	colorSubtext0 lipgloss.Color = "#a6adc8"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorSurface1 lipgloss.Color = "#45475a"
	colorSurface2 lipgloss.Color = "#585b70"
	colorMantle   lipgloss.Color = "#181825"
)

const (
	colorAccent  = colorPink
	colorFocus   = colorLavender
	colorSuccess = colorGreen
	colorError   = colorRed
	colorWarning = colorYellow
	colorInfo    = colorTeal
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			Padding(0, 1)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSubtext0).
				Bold(true)

	labelStyle  = lipgloss.NewStyle().Foreground(colorSubtext0)
	valueStyle  = lipgloss.NewStyle().Foreground(colorPeach)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorOverlay1)
	creditStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	debitStyle  = lipgloss.NewStyle().Foreground(colorError)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarning)
	infoStyle   = lipgloss.NewStyle().Foreground(colorInfo)
	cursorStyle = lipgloss.NewStyle().Foreground(colorFocus).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(colorText)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorSubtext0).
			Background(colorMantle).
			Padding(0, 2)
	helpKeyStyle  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	helpDescStyle = lipgloss.NewStyle().Foreground(colorSubtext0)

	separatorStyle = lipgloss.NewStyle().Foreground(colorSurface2)
)
