package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/slawatch/internal/theme"
)

// Layout manages the terminal frame: a one-line header, the content
// area, and a one-line status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the active view.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader renders the title on the left and the dashboard counts on
// the right, padded to the full width.
func (l Layout) RenderHeader(title, counts string) string {
	return l.bar(theme.HeaderStyle, theme.HeaderStyle.Render(title), theme.HeaderStyle.Render(counts))
}

// RenderStatusBar renders keyboard hints, or msg in the error style when
// msg is non-empty.
func (l Layout) RenderStatusBar(hints, loop, msg string) string {
	left := theme.StatusBarStyle.Render(hints)
	if msg != "" {
		left = theme.StatusBarStyle.Inherit(theme.ErrorStyle).Render(msg)
	}
	return l.bar(theme.StatusBarStyle, left, theme.StatusBarStyle.Render(loop))
}

func (l Layout) bar(style lipgloss.Style, left, right string) string {
	gap := l.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}

// RenderWithFrame stacks header, content, and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
