// Package detail renders one monitored task with its deadlines and
// justification history in a scrollable viewport.
package detail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/slawatch/internal/keys"
	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/theme"
)

// Service loads task details.
type Service interface {
	TaskDetail(ctx context.Context, id string) (*monitor.TaskDetail, error)
}

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// LoadedMsg carries the loaded task detail.
type LoadedMsg struct {
	Detail *monitor.TaskDetail
	Err    error
}

// JustifyRequestMsg asks the parent to open the justification form for
// the displayed task.
type JustifyRequestMsg struct {
	TaskID   string
	TaskName string
}

// Model is the task detail view component.
type Model struct {
	svc      Service
	detail   *monitor.TaskDetail
	err      error
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new detail view model.
func New(svc Service, keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		svc:      svc,
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Open starts loading the task with the given id.
func (m *Model) Open(id string) tea.Cmd {
	m.loading = true
	m.err = nil
	return m.load(id)
}

// Reload refreshes the displayed task, if any.
func (m *Model) Reload() tea.Cmd {
	if m.detail == nil {
		return nil
	}
	return m.load(m.detail.Task.ID)
}

func (m Model) load(id string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		d, err := svc.TaskDetail(context.Background(), id)
		return LoadedMsg{Detail: d, Err: err}
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.loading = false
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		m.detail = msg.Detail
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.Justify):
			if m.detail != nil && m.detail.Task.Status == model.StatusEscalated {
				t := m.detail.Task
				return m, func() tea.Msg {
					return JustifyRequestMsg{TaskID: t.ID, TaskName: t.Name}
				}
			}
			return m, nil
		}
	}

	// j/k, up/down, pgup/pgdn scroll the viewport.
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	centered := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center)

	switch {
	case m.loading:
		return centered.Foreground(theme.ColorGray).Render("Loading task...")
	case m.err != nil:
		return centered.Inherit(theme.ErrorStyle).Render("Error: " + m.err.Error())
	case m.detail == nil:
		return centered.Foreground(theme.ColorGray).Render("No task selected")
	}
	return m.viewport.View()
}

// Detail returns the task currently displayed, or nil.
func (m Model) Detail() *monitor.TaskDetail {
	return m.detail
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.detail == nil {
		return ""
	}

	d := m.detail
	task := d.Task
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(task.Name))

	statusBadge := theme.LifecycleStyle(string(task.Status)).Render(string(task.Status))
	countdown := lipgloss.NewStyle().Foreground(theme.ColorYellow).Render(d.Countdown)
	sections = append(sections,
		lipgloss.JoinHorizontal(lipgloss.Top, statusBadge, "  ", countdown),
		"",
	)

	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) string {
		return theme.LabelStyle.Width(14).Render(label) + valStyle.Render(value)
	}

	sections = append(sections,
		row("ID", task.ID),
		row("SLA", fmt.Sprintf("%d min", task.SLAMinutes)),
		row("Pre-start", m.clock(d.Thresholds.PreStartAt)),
		row("Start", m.clock(d.Thresholds.Start)),
		row("Breach", m.clock(d.Thresholds.BreachAt)),
		row("Escalation", m.clock(d.Thresholds.EscalateAt)),
	)
	if task.CompletedAt != nil {
		sections = append(sections, row("Completed", m.clock(*task.CompletedAt)))
	}
	if task.LastEvaluatedAt != nil {
		sections = append(sections, row("Evaluated", m.clock(*task.LastEvaluatedAt)))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", separator, "")

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, headerStyle.Render(
		fmt.Sprintf("Justifications (%d)", len(d.Justifications)),
	))

	if len(d.Justifications) == 0 {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("None recorded"))
	}

	authorStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)
	timeStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	for _, j := range d.Justifications {
		sections = append(sections,
			"",
			fmt.Sprintf("%s  %s",
				authorStyle.Render(j.SubmittedBy),
				timeStyle.Render(m.clock(j.SubmittedAt)+", escalated "+m.clock(j.EscalatedAt)),
			),
			j.Text,
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// clock formats t in the schedule's zone.
func (m Model) clock(t time.Time) string {
	return t.In(m.detail.Thresholds.Start.Location()).Format("2006-01-02 15:04 MST")
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.detail != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
