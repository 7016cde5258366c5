// Package dashboard renders the aggregate notification counts.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/theme"
)

// Render draws the summary as a boxed panel.
func Render(s monitor.DashboardSummary, width int) string {
	rows := []string{
		row("Notifications", fmt.Sprintf("%d", s.Total), theme.ColorWhite),
		row("Unread", fmt.Sprintf("%d", s.Unread), countColor(s.Unread, theme.ColorBlue)),
		row("Escalated", fmt.Sprintf("%d", s.Escalated), countColor(s.Escalated, theme.ColorOrange)),
		row("Justification pending", fmt.Sprintf("%d", s.JustificationPending),
			countColor(s.JustificationPending, theme.ColorRed)),
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("SLA Dashboard")

	style := theme.PanelStyle
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rows, "\n")))
}

// Inline renders the summary on one line for headers.
func Inline(s monitor.DashboardSummary) string {
	return fmt.Sprintf("%d unread · %d escalated · %d awaiting justification",
		s.Unread, s.Escalated, s.JustificationPending)
}

// LastTick describes how long ago the last evaluation pass started.
func LastTick(at, now time.Time) string {
	if at.IsZero() {
		return "not yet evaluated"
	}
	d := now.Sub(at)
	if d < time.Minute {
		return "evaluated just now"
	}
	return fmt.Sprintf("evaluated %dm ago", int(d.Minutes()))
}

func row(label, value string, color lipgloss.TerminalColor) string {
	return theme.LabelStyle.Render(label) +
		lipgloss.NewStyle().Bold(true).Foreground(color).Render(value)
}

func countColor(n int, hot lipgloss.AdaptiveColor) lipgloss.TerminalColor {
	if n == 0 {
		return theme.ColorGray
	}
	return hot
}
