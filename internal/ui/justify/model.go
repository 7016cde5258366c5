// Package justify is the form that records why an escalated task is late.
package justify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/slawatch/internal/theme"
)

// SubmitMsg is dispatched when the form is completed.
type SubmitMsg struct {
	TaskID string
	Text   string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	text string
}

// Model is the Bubble Tea model for the justification form.
type Model struct {
	form      *huh.Form
	fb        *formBindings
	taskID    string
	taskName  string
	minLength int
	width     int
	height    int
}

// New creates a justification form requiring at least minLength
// characters once surrounding whitespace is trimmed.
func New(minLength, width, height int) Model {
	return Model{
		fb:        &formBindings{},
		minLength: minLength,
		width:     width,
		height:    height,
	}
}

// Start initializes the form for the given task.
func (m *Model) Start(taskID, taskName string) tea.Cmd {
	m.taskID = taskID
	m.taskName = taskName
	m.fb.text = ""
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Justification").
				Description(fmt.Sprintf("At least %d characters.", m.minLength)).
				Placeholder("Why is this task late?").
				Value(&m.fb.text).
				Validate(ValidateLength(m.minLength)),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
	return m.form.Init()
}

// TaskID returns the task the form was started for.
func (m Model) TaskID() string {
	return m.taskID
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		taskID, text := m.taskID, strings.TrimSpace(m.fb.text)
		m.form = nil
		return m, func() tea.Msg { return SubmitMsg{TaskID: taskID, Text: text} }
	}
	if m.form.State == huh.StateAborted {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := "Justify delay"
	if m.taskName != "" {
		title += ": " + m.taskName
	}

	content := titleStyle.Render(title) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

// ValidateLength returns a huh validator rejecting text shorter than min
// characters after trimming.
func ValidateLength(min int) func(string) error {
	return func(s string) error {
		n := utf8.RuneCountInString(strings.TrimSpace(s))
		if n < min {
			return fmt.Errorf("justification needs at least %d characters (got %d)", min, n)
		}
		return nil
	}
}
