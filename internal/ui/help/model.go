// Package help renders the shortcut overlay together with a lifecycle
// legend and the evaluation loop status.
package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/slawatch/internal/keys"
	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/theme"
)

var lifecycle = []model.LifecycleStatus{
	model.StatusPending,
	model.StatusPreStart,
	model.StatusDue,
	model.StatusSLABreached,
	model.StatusEscalated,
	model.StatusAcknowledged,
	model.StatusCompleted,
}

var sectionStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(theme.ColorWhite).
	MarginTop(1)

// Model is the help overlay.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	loop   [][2]string
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.ShowAll = true
	m := Model{keys: keys, help: h}
	m.SetSize(width, height)
	return m
}

// Update is a no-op; the overlay is closed by the parent.
func (m Model) Update(tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// SetLoopStatus replaces the label/value rows describing the loop.
func (m *Model) SetLoopStatus(rows [][2]string) {
	m.loop = rows
}

// View renders the help overlay.
func (m Model) View() string {
	parts := []string{
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		sectionStyle.Render("Lifecycle"),
		legend(),
	}

	if len(m.loop) > 0 {
		parts = append(parts, sectionStyle.Render("Evaluation Loop"))
		for _, row := range m.loop {
			parts = append(parts, theme.LabelStyle.Render(row[0])+row[1])
		}
	}

	return theme.PanelStyle.
		Width(max(m.width-4, 0)).
		Height(max(m.height-4, 0)).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// legend lists the lifecycle states in forward order, colored as they
// appear in the notification list.
func legend() string {
	states := make([]string, len(lifecycle))
	for i, s := range lifecycle {
		states[i] = theme.LifecycleStyle(string(s)).Render(string(s))
	}
	return strings.Join(states, theme.DimmedStyle.Render("→"))
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 8
}
