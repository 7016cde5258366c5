package alerts

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/slawatch/internal/monitor"
	"github.com/nhle/slawatch/internal/theme"
)

// NotificationItem wraps a notification view so it can be used in a
// bubbles/list.
type NotificationItem struct {
	View monitor.NotificationView
}

// FilterValue returns the string used for fuzzy filtering.
func (i NotificationItem) FilterValue() string { return i.View.TaskName }

// Title returns the task name for the list.
func (i NotificationItem) Title() string { return i.View.TaskName }

// Description returns the stored payload.
func (i NotificationItem) Description() string { return i.View.Payload }

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a notification as a headline and its payload.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(NotificationItem)
	if !ok {
		return
	}
	v := ni.View
	isSelected := index == m.Index()

	marker := "●"
	if v.Read() {
		marker = " "
	}

	kind := string(v.Kind)
	badge := theme.EventKindStyle(kind).Render(theme.EventKindLabel(kind))

	status := ""
	if v.Status != "" {
		status = theme.LifecycleStyle(string(v.Status)).Render(string(v.Status))
	}

	countdown := ""
	if v.Countdown != "" {
		countdown = lipgloss.NewStyle().
			Foreground(theme.ColorYellow).
			Render(" " + v.Countdown)
	}

	created := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(" " + v.CreatedAt.Local().Format(time.Kitchen))

	name := v.TaskName
	if name == "" {
		name = v.TaskID
	}

	headline := fmt.Sprintf("%s %s %s %s%s%s", marker, badge, name, status, countdown, created)
	body := "   " + v.Payload

	if v.Read() || v.Archived() {
		headline = theme.DimmedStyle.Render(headline)
	}
	body = theme.DimmedStyle.Render(body)

	line := headline + "\n" + body
	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}
