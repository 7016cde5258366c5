// Package app is the root Bubble Tea model of the notification console.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/slawatch/internal/keys"
	"github.com/nhle/slawatch/internal/model"
	"github.com/nhle/slawatch/internal/monitor"
	appsync "github.com/nhle/slawatch/internal/sync"
	"github.com/nhle/slawatch/internal/ui"
	"github.com/nhle/slawatch/internal/ui/alerts"
	"github.com/nhle/slawatch/internal/ui/command"
	"github.com/nhle/slawatch/internal/ui/dashboard"
	"github.com/nhle/slawatch/internal/ui/detail"
	helpview "github.com/nhle/slawatch/internal/ui/help"
	"github.com/nhle/slawatch/internal/ui/justify"
)

// Service is what the console needs from the monitor.
type Service interface {
	alerts.Service
	detail.Service
	SubmitJustification(ctx context.Context, taskID, text, actor string) (*model.JustificationRecord, error)
	CompleteTask(ctx context.Context, id string, at time.Time) (*monitor.Evaluation, error)
}

// Poller is the evaluation loop as seen by the console.
type Poller interface {
	Start() tea.Cmd
	Stop()
	Trigger() tea.Cmd
	Status() appsync.Status
	WaitForNextResult() tea.Cmd
}

// justifiedMsg reports the outcome of a justification submission.
type justifiedMsg struct {
	taskID string
	err    error
}

// completedMsg reports the outcome of a completion command.
type completedMsg struct {
	taskID string
	err    error
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewAlerts ViewState = iota
	ViewJustify
	ViewDetail
	ViewDashboard
	ViewHelp
	ViewCommand
)

// Model is the root Bubble Tea model that manages view routing and
// layout.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	svc          Service
	poller       Poller
	keys         *keys.KeyMap
	actor        string
	alerts       alerts.Model
	justify      justify.Model
	detail       detail.Model
	helpView     helpview.Model
	commandView  command.Model
	flash        string
	flashErr     bool
	ready        bool
}

// New creates the root model. actor is recorded on reads, archives, and
// justifications made from this console.
func New(svc Service, p Poller, actor string, minJustification int) Model {
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewAlerts,
		svc:         svc,
		poller:      p,
		keys:        k,
		actor:       actor,
		alerts:      alerts.New(svc, k, actor, 80, 24),
		justify:     justify.New(minJustification, 80, 24),
		detail:      detail.New(svc, k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
	}
}

// Init loads the first page of notifications and starts the loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.alerts.Init(),
		m.poller.Start(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.alerts.SetSize(w, h)
		m.justify.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case appsync.SyncResultMsg:
		if msg.Error != nil {
			m.setFlash(fmt.Sprintf("evaluation failed: %v", msg.Error), true)
		} else if m.flashErr {
			m.clearFlash()
		}
		cmds := []tea.Cmd{m.alerts.Load(), m.poller.WaitForNextResult()}
		if m.currentView == ViewDetail {
			cmds = append(cmds, m.detail.Reload())
		}
		return m, tea.Batch(cmds...)

	case alerts.LoadedMsg, alerts.ActionDoneMsg:
		if done, ok := msg.(alerts.ActionDoneMsg); ok && done.Err != nil {
			m.setFlash(done.Err.Error(), true)
		}
		var cmd tea.Cmd
		m.alerts, cmd = m.alerts.Update(msg)
		return m, cmd

	case alerts.JustifyRequestMsg:
		return m, m.openJustify(msg.TaskID, msg.TaskName)

	case detail.JustifyRequestMsg:
		return m, m.openJustify(msg.TaskID, msg.TaskName)

	case alerts.OpenRequestMsg:
		m.currentView = ViewDetail
		return m, m.detail.Open(msg.TaskID)

	case detail.LoadedMsg:
		if msg.Err != nil {
			m.setFlash(msg.Err.Error(), true)
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd

	case detail.BackMsg:
		m.currentView = ViewAlerts
		return m, nil

	case alerts.SyncRequestMsg:
		m.setFlash("evaluation requested", false)
		return m, m.poller.Trigger()

	case justify.SubmitMsg:
		m.currentView = ViewAlerts
		return m, m.submitJustification(msg.TaskID, msg.Text)

	case justify.CancelMsg:
		m.currentView = ViewAlerts
		return m, nil

	case justifiedMsg:
		switch {
		case msg.err == nil:
			m.setFlash("justification recorded for "+msg.taskID, false)
		case errors.Is(msg.err, monitor.ErrAlreadyAcknowledged):
			m.setFlash("already justified: "+msg.taskID, true)
		default:
			m.setFlash(msg.err.Error(), true)
		}
		return m, m.alerts.Load()

	case completedMsg:
		if msg.err != nil {
			m.setFlash(msg.err.Error(), true)
		} else {
			m.setFlash("completed "+msg.taskID, false)
		}
		return m, m.alerts.Load()

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(msg)

	case tea.KeyMsg:
		if m.currentView == ViewJustify || m.currentView == ViewCommand {
			if msg.String() == "ctrl+c" {
				m.poller.Stop()
				return m, tea.Quit
			}
			if key.Matches(msg, m.keys.Back) {
				if m.currentView == ViewCommand {
					m.currentView = m.previousView
				} else {
					m.currentView = ViewAlerts
				}
				return m, nil
			}
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.currentView == ViewAlerts || msg.String() == "ctrl+c" {
				m.poller.Stop()
				return m, tea.Quit
			}
			m.currentView = ViewAlerts
			return m, nil

		case key.Matches(msg, m.keys.Back):
			m.currentView = ViewAlerts
			return m, nil

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			m.helpView.SetLoopStatus(m.loopRows())
			return m, nil

		case key.Matches(msg, m.keys.Dashboard):
			if m.currentView == ViewDashboard {
				m.currentView = ViewAlerts
				return m, nil
			}
			m.currentView = ViewDashboard
			return m, m.alerts.Load()

		case key.Matches(msg, m.keys.Command):
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewAlerts:
		m.alerts, cmd = m.alerts.Update(msg)
	case ViewJustify:
		m.justify, cmd = m.justify.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("SLA Watch", dashboard.Inline(m.alerts.Summary()))
	content := m.renderContent()

	msg := ""
	if m.flashErr {
		msg = m.flash
	}
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.loopStatus(), msg)

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewAlerts:
		return m.alerts.View()
	case ViewJustify:
		return m.justify.View()
	case ViewDetail:
		return m.detail.View()
	case ViewDashboard:
		return dashboard.Render(m.alerts.Summary(), m.layout.ContentWidth())
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// loopStatus summarises the evaluation loop for the status bar.
func (m Model) loopStatus() string {
	st := m.poller.Status()
	switch st.State {
	case appsync.TickRunning:
		return "evaluating..."
	case appsync.TickFailed:
		return "⚠ " + dashboard.LastTick(st.LastSuccess, time.Now())
	}
	return dashboard.LastTick(st.LastTick, time.Now())
}

func (m Model) loopRows() [][2]string {
	st := m.poller.Status()
	rows := [][2]string{
		{"State", st.State.String()},
		{"Last pass", dashboard.LastTick(st.LastTick, time.Now())},
		{"Last success", dashboard.LastTick(st.LastSuccess, time.Now())},
		{"Tasks evaluated", fmt.Sprint(st.LastResult.TasksEvaluated)},
		{"Events emitted", fmt.Sprint(st.LastResult.EventsEmitted)},
		{"Skipped ticks", fmt.Sprint(st.Skipped)},
	}
	if st.Error != nil {
		rows = append(rows, [2]string{"Last error", st.Error.Error()})
	}
	return rows
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.flash != "" && !m.flashErr {
		return m.flash
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewJustify:
		return "enter submit | esc cancel"
	case ViewDashboard:
		return "d close | esc back"
	case ViewDetail:
		return "j/k scroll | J justify | esc back"
	default:
		return "q quit | ? help | enter read | o details | x archive | J justify | tab " + m.alerts.Filter()
	}
}

func (m *Model) setFlash(text string, isErr bool) {
	m.flash = text
	m.flashErr = isErr
}

func (m *Model) clearFlash() {
	m.flash = ""
	m.flashErr = false
}

func (m *Model) openJustify(taskID, taskName string) tea.Cmd {
	m.clearFlash()
	m.currentView = ViewJustify
	return m.justify.Start(taskID, taskName)
}

func (m Model) submitJustification(taskID, text string) tea.Cmd {
	svc, actor := m.svc, m.actor
	return func() tea.Msg {
		_, err := svc.SubmitJustification(context.Background(), taskID, text, actor)
		return justifiedMsg{taskID: taskID, err: err}
	}
}

func (m Model) completeTask(taskID string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		_, err := svc.CompleteTask(context.Background(), taskID, time.Time{})
		return completedMsg{taskID: taskID, err: err}
	}
}

// executeCommand handles a parsed command from the palette.
func (m *Model) executeCommand(c command.CommandMsg) tea.Cmd {
	switch c.Name {
	case command.CmdSync:
		m.setFlash("evaluation requested", false)
		return m.poller.Trigger()
	case command.CmdFilter:
		cmd, err := m.alerts.SetFilter(c.Args[0])
		if err != nil {
			m.setFlash(err.Error(), true)
		}
		return cmd
	case command.CmdComplete:
		return m.completeTask(c.Args[0])
	case command.CmdJustify:
		return m.openJustify(c.Args[0], "")
	case command.CmdDash:
		m.currentView = ViewDashboard
		return m.alerts.Load()
	case command.CmdQuit:
		m.poller.Stop()
		return tea.Quit
	default:
		return nil
	}
}
