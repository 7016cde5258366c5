package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/slawatch/internal/theme"
)

// Names of the commands the palette understands.
const (
	CmdSync     = "sync"
	CmdFilter   = "filter"
	CmdComplete = "complete"
	CmdJustify  = "justify"
	CmdDash     = "dashboard"
	CmdQuit     = "quit"
)

// usage maps each command to its argument synopsis.
var usage = map[string]string{
	CmdSync:     "sync",
	CmdFilter:   "filter <active|unread|read|archived|all>",
	CmdComplete: "complete <task-id>",
	CmdJustify:  "justify <task-id>",
	CmdDash:     "dashboard",
	CmdQuit:     "quit",
}

// arity is the number of arguments each command takes.
var arity = map[string]int{
	CmdSync:     0,
	CmdFilter:   1,
	CmdComplete: 1,
	CmdJustify:  1,
	CmdDash:     0,
	CmdQuit:     0,
}

// aliases resolve shorthand to a command name.
var aliases = map[string]string{
	"s":       CmdSync,
	"refresh": CmdSync,
	"f":       CmdFilter,
	"done":    CmdComplete,
	"dash":    CmdDash,
	"q":       CmdQuit,
}

// CommandMsg is emitted when the user executes a valid command.
type CommandMsg struct {
	Name string
	Args []string
}

// Parse splits a palette line into a command and its arguments.
func Parse(line string) (CommandMsg, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CommandMsg{}, fmt.Errorf("empty command")
	}

	name := strings.ToLower(fields[0])
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	n, ok := arity[name]
	if !ok {
		return CommandMsg{}, fmt.Errorf("unknown command %q", fields[0])
	}
	args := fields[1:]
	if len(args) != n {
		return CommandMsg{}, fmt.Errorf("usage: %s", usage[name])
	}
	return CommandMsg{Name: name, Args: args}, nil
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	err    error
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "sync, filter unread, complete <task-id>..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		parsed, err := Parse(line)
		m.err = err
		if err != nil {
			return m, nil
		}
		m.input.Reset()
		return m, func() tea.Msg { return parsed }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Command"), m.input.View()}
	if m.err != nil {
		parts = append(parts, "", theme.ErrorStyle.Render(m.err.Error()))
	}

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus clears any previous error and gives keyboard focus to the input.
func (m *Model) Focus() tea.Cmd {
	m.err = nil
	m.input.Reset()
	return m.input.Focus()
}
