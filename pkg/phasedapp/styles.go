package phasedapp

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/BrianJOC/app-provisioner/phases"
)

const (
	colorAccent  = lipgloss.Color("#A78BFA")
	colorMuted   = lipgloss.Color("#94A3B8")
	colorDim     = lipgloss.Color("#475569")
	colorFrame   = lipgloss.Color("#4C566A")
	colorText    = lipgloss.Color("#E0E7FF")
	colorOK      = lipgloss.Color("#34D399")
	colorWarn    = lipgloss.Color("#FBBF24")
	colorError   = lipgloss.Color("#F87171")
	colorRunning = lipgloss.Color("#F97316")
)

var (
	panel = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorFrame).Padding(0, 1)

	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E0AAFF"))
	subtitleStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	listPanelStyle   = panel.Copy().BorderForeground(colorAccent)
	detailPanelStyle = panel.Copy()
	promptPanelStyle = panel.Copy().BorderForeground(colorAccent).MarginTop(1)
	helpStyle        = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#7C3AED")).Padding(1, 2).MarginTop(1)
	statusBarStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1).Background(lipgloss.Color("#312E81")).Foreground(colorText)
	footerStyle      = lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1).MarginTop(1)
	detailTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FDE047"))
	infoTextStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CBD5F5"))
	errorTextStyle   = lipgloss.NewStyle().Foreground(colorError)
	logSectionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A5B4FC")).Bold(true)
	logTextStyle     = lipgloss.NewStyle().Foreground(colorText)
	runningStyle     = lipgloss.NewStyle().Foreground(colorRunning).Bold(true)
	pendingStyle     = lipgloss.NewStyle().Foreground(colorMuted)
)

var outcomeIcons = map[phases.Outcome]string{
	phases.Skipped:        "↷",
	phases.Succeeded:      "✔",
	phases.FailedContinue: "!",
	phases.FailedFatal:    "✖",
	phases.NotRun:         "•",
}

var outcomeStyles = map[phases.Outcome]lipgloss.Style{
	phases.Skipped:        lipgloss.NewStyle().Foreground(colorMuted),
	phases.Succeeded:      lipgloss.NewStyle().Foreground(colorOK),
	phases.FailedContinue: lipgloss.NewStyle().Foreground(colorWarn),
	phases.FailedFatal:    lipgloss.NewStyle().Foreground(colorError).Bold(true),
	phases.NotRun:         lipgloss.NewStyle().Foreground(colorDim),
}

// styleForWidth sizes base so its rendered frame spans totalWidth columns.
func styleForWidth(base lipgloss.Style, totalWidth int) lipgloss.Style {
	style := base.Copy()
	if totalWidth <= 0 {
		return style
	}
	frame, _ := base.GetFrameSize()
	return style.Width(max(totalWidth-frame, 0))
}
