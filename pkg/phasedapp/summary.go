package phasedapp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/BrianJOC/app-provisioner/phases"
)

var titleCase = cases.Title(language.English)

// OutcomeLabel is the operator-facing name of an outcome.
func OutcomeLabel(o phases.Outcome) string {
	switch o {
	case phases.FailedContinue:
		return "Failed (continued)"
	case phases.FailedFatal:
		return "Failed"
	case phases.NotRun:
		return "Not run"
	}
	return titleCase.String(string(o))
}

// RenderSummary formats a report for the terminal. Width 0 disables wrapping.
func RenderSummary(report *phases.Report, width int) string {
	if report == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Provisioning summary"))
	b.WriteString("  ")
	b.WriteString(subtitleStyle.Render("run " + report.RunID))
	b.WriteString("\n\n")

	for _, res := range report.Results {
		b.WriteString(resultLine(res))
		b.WriteString("\n")
		if res.Outcome.Failed() && res.Err != nil {
			b.WriteString(indent(errorTextStyle.Render(causeOf(res.Err)), width))
			b.WriteString("\n")
		}
		if res.Remediation != "" && (res.Outcome.Failed() || report.RestartRequired) {
			b.WriteString(indent(infoTextStyle.Render("→ "+res.Remediation), width))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(statusBarStyle.Render(statusLine(report)))
	return b.String()
}

func resultLine(res phases.RunResult) string {
	style := outcomeStyles[res.Outcome]
	line := fmt.Sprintf("%s %-32s %s", outcomeIcons[res.Outcome], res.Title, OutcomeLabel(res.Outcome))
	if res.Duration > 0 {
		line += fmt.Sprintf(" (%s)", res.Duration.Round(100*time.Millisecond))
	}
	out := style.Render(line)
	if res.Detail != "" {
		out += subtitleStyle.Render("  " + res.Detail)
	}
	return out
}

func statusLine(report *phases.Report) string {
	switch {
	case report.Cancelled:
		return "Cancelled by operator"
	case report.Aborted:
		return "Provisioning stopped at a required step"
	case report.RestartRequired:
		return "Restart required: open a new terminal and run the provisioner again"
	}
	for _, res := range report.Results {
		if res.Outcome.Failed() {
			return "Completed with warnings"
		}
	}
	return "Provisioning completed"
}

// causeOf strips the phase wrapper; the summary already names the phase.
func causeOf(err error) string {
	var pe phases.PhaseExecutionError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err.Error()
	}
	return err.Error()
}

func indent(text string, width int) string {
	style := lipgloss.NewStyle().PaddingLeft(4)
	if width > 8 {
		style = style.Width(width)
	}
	return style.Render(text)
}
