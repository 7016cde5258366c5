package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings for the notification console.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	Help      key.Binding
	Command   key.Binding
	Dashboard key.Binding

	// Force an evaluation pass now
	Sync key.Binding

	// Notification actions
	Read    key.Binding
	Open    key.Binding
	Archive key.Binding
	Justify key.Binding

	// Cycle active / unread / read / archived / all
	CycleFilter key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "command"),
		),
		Dashboard: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "dashboard"),
		),
		Sync: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "sync now"),
		),
		Read: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "mark read"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "task details"),
		),
		Archive: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "archive"),
		),
		Justify: key.NewBinding(
			key.WithKeys("J"),
			key.WithHelp("J", "justify"),
		),
		CycleFilter: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "cycle filter"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Read, k.Justify,
		k.Sync, k.Quit, k.Help,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Back, k.Quit},
		{k.Read, k.Open, k.Archive, k.Justify},
		{k.Sync, k.CycleFilter, k.Dashboard, k.Command, k.Help},
	}
}
