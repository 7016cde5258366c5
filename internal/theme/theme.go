package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// PanelStyle wraps boxed content such as the dashboard and help overlay.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// DimmedStyle renders read or archived notifications.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// LabelStyle renders field names in key/value listings.
var LabelStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Width(22)

// LifecycleStyle returns a color-coded style for a task lifecycle status.
func LifecycleStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch status {
	case "PENDING":
		return base.Foreground(ColorGray)
	case "PRE_START":
		return base.Foreground(ColorBlue)
	case "DUE":
		return base.Foreground(ColorYellow)
	case "SLA_BREACHED":
		return base.Foreground(ColorOrange)
	case "ESCALATED":
		return base.Foreground(ColorRed)
	case "ACKNOWLEDGED":
		return base.Foreground(ColorMagenta)
	case "COMPLETED":
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// EventKindStyle returns a color-coded style for a notification kind.
func EventKindStyle(kind string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch kind {
	case "PRE_START":
		return base.Foreground(ColorBlue)
	case "MISSED_START":
		return base.Foreground(ColorYellow)
	case "ESCALATED":
		return base.Foreground(ColorRed)
	case "JUSTIFICATION_REQUIRED":
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGray)
	}
}

// EventKindLabel returns a fixed-width badge label for a notification kind.
func EventKindLabel(kind string) string {
	switch kind {
	case "PRE_START":
		return "SOON"
	case "MISSED_START":
		return "LATE"
	case "ESCALATED":
		return "ESC "
	case "JUSTIFICATION_REQUIRED":
		return "JUST"
	default:
		return "????"
	}
}
