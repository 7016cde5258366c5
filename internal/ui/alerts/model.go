// Package alerts is the notification list view of the console.
package alerts

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/slawatch/internal/keys"
	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/store"
	"github.com/nhle/slawatch/internal/theme"
)

// Service is the part of the monitor the list view needs.
type Service interface {
	ListNotifications(ctx context.Context, filter store.NotificationFilter) ([]monitor.NotificationView, error)
	Dashboard(ctx context.Context) (monitor.DashboardSummary, error)
	AcknowledgeRead(ctx context.Context, id, actor string) error
	Archive(ctx context.Context, id, actor string) error
}

// LoadedMsg is sent when notifications and counts have been loaded.
type LoadedMsg struct {
	Views   []monitor.NotificationView
	Summary monitor.DashboardSummary
	Err     error
}

// ActionDoneMsg is sent after a read or archive completes.
type ActionDoneMsg struct {
	Info string
	Err  error
}

// JustifyRequestMsg asks the app to open the justification form.
type JustifyRequestMsg struct {
	TaskID   string
	TaskName string
}

// OpenRequestMsg asks the app to show the detail view for a task.
type OpenRequestMsg struct {
	TaskID string
}

// SyncRequestMsg asks the app to trigger an evaluation pass.
type SyncRequestMsg struct{}

// filterModes are cycled by Tab.
var filterModes = []string{
	store.NotificationsActive,
	store.NotificationsUnread,
	store.NotificationsRead,
	store.NotificationsArchived,
	store.NotificationsAll,
}

// Model is the notification list view component.
type Model struct {
	list        list.Model
	svc         Service
	keys        *keys.KeyMap
	actor       string
	filterIndex int
	summary     monitor.DashboardSummary
	err         error
	width       int
	height      int
}

// New creates a new notification list model acting as actor.
func New(svc Service, k *keys.KeyMap, actor string, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		svc:    svc,
		keys:   k,
		actor:  actor,
		width:  width,
		height: height,
	}
}

// Init returns a command that loads the first page of notifications.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		m.summary = msg.Summary
		items := make([]list.Item, len(msg.Views))
		for i, v := range msg.Views {
			items[i] = NotificationItem{View: v}
		}
		return m, m.list.SetItems(items)

	case ActionDoneMsg:
		m.err = msg.Err
		return m, m.Load()

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Read):
		if v, ok := m.Selected(); ok && !v.Read() {
			return m, m.markRead(v.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Open):
		v, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return OpenRequestMsg{TaskID: v.TaskID} }

	case key.Matches(msg, m.keys.Archive):
		if v, ok := m.Selected(); ok && !v.Archived() {
			return m, m.archive(v.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Justify):
		v, ok := m.Selected()
		if !ok || v.Status != model.StatusEscalated {
			return m, nil
		}
		return m, func() tea.Msg {
			return JustifyRequestMsg{TaskID: v.TaskID, TaskName: v.TaskName}
		}

	case key.Matches(msg, m.keys.Sync):
		return m, func() tea.Msg { return SyncRequestMsg{} }

	case key.Matches(msg, m.keys.CycleFilter):
		m.filterIndex = (m.filterIndex + 1) % len(filterModes)
		m.list.Title = "Notifications (" + m.Filter() + ")"
		return m, m.Load()
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list view.
func (m Model) View() string {
	if m.err != nil && len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(theme.ErrorStyle.Render(m.err.Error()))
	}

	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render(fmt.Sprintf("No %s notifications.", m.Filter()))
	}

	return m.list.View()
}

// Selected returns the focused notification, if any.
func (m Model) Selected() (monitor.NotificationView, bool) {
	item, ok := m.list.SelectedItem().(NotificationItem)
	if !ok {
		return monitor.NotificationView{}, false
	}
	return item.View, true
}

// Filter returns the active status filter.
func (m Model) Filter() string {
	return filterModes[m.filterIndex]
}

// SetFilter switches to the named status filter and reloads.
func (m *Model) SetFilter(mode string) (tea.Cmd, error) {
	for i, f := range filterModes {
		if f == mode {
			m.filterIndex = i
			m.list.Title = "Notifications (" + mode + ")"
			return m.Load(), nil
		}
	}
	return nil, fmt.Errorf("unknown filter %q", mode)
}

// Summary returns the counts from the last load.
func (m Model) Summary() monitor.DashboardSummary {
	return m.summary
}

// Err returns the last load or action error.
func (m Model) Err() error {
	return m.err
}

// Load returns a tea.Cmd that fetches notifications with the current
// filter along with the dashboard counts.
func (m Model) Load() tea.Cmd {
	svc := m.svc
	filter := store.NotificationFilter{Status: m.Filter(), Limit: 200}
	return func() tea.Msg {
		ctx := context.Background()
		views, err := svc.ListNotifications(ctx, filter)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		summary, err := svc.Dashboard(ctx)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		return LoadedMsg{Views: views, Summary: summary}
	}
}

func (m Model) markRead(id string) tea.Cmd {
	svc, actor := m.svc, m.actor
	return func() tea.Msg {
		err := svc.AcknowledgeRead(context.Background(), id, actor)
		return ActionDoneMsg{Info: "marked read", Err: err}
	}
}

func (m Model) archive(id string) tea.Cmd {
	svc, actor := m.svc, m.actor
	return func() tea.Msg {
		err := svc.Archive(context.Background(), id, actor)
		return ActionDoneMsg{Info: "archived", Err: err}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
