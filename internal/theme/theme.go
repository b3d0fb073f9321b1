package theme

import "github.com/charmbracelet/lipgloss"

// Palette. Each pair is (dark terminal, light terminal); the accent is the
// brand cyan also used as the default label color.
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#00D9FF", Light: "#0077A8"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#49F2A1", Light: "#11875A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFC857", Light: "#A86F00"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF5F7A", Light: "#C2183B"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FF9F43", Light: "#B95C00"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#B388FF", Light: "#6A3DC8"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#8A94A6", Light: "#5F6B7D"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#EEF3F8", Light: "#111827"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#243447", Light: "#D3DEEA"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#33475B", Light: "#C5D3E0"}
)

// HeaderStyle is the title bar.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.AdaptiveColor{Dark: "#0B1320", Light: "#FFFFFF"}).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is the bottom line with key hints and status text.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// DetailPanelStyle frames the message viewer and forms.
var DetailPanelStyle = lipgloss.NewStyle().
	Padding(0, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ListItemStyle is an unfocused row.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle is the focused row, marked with a bar on the left.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Foreground(ColorBlue).
	Bold(true).
	Border(lipgloss.ThickBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// HelpStyle renders key hints.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// DimmedStyle renders read mail and secondary text.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// UnreadStyle renders the rows of unread mail.
var UnreadStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite)

// StarStyle renders the star marker.
var StarStyle = lipgloss.NewStyle().
	Foreground(ColorYellow)

// ValueStyle renders the amount carried by a message.
var ValueStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorGreen)

// ErrorStyle renders inline errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed)

// SidebarStyle frames the folder list.
var SidebarStyle = lipgloss.NewStyle().
	PaddingRight(1).
	Border(lipgloss.NormalBorder(), false, true, false, false).
	BorderForeground(ColorBorder)

// FolderStyle returns the style of a sidebar entry.
func FolderStyle(active bool) lipgloss.Style {
	if active {
		return SelectedItemStyle
	}
	return ListItemStyle
}

// ThreatStyle returns a color-coded style for a scan threat level.
func ThreatStyle(level string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch level {
	case "SAFE":
		return base.Foreground(ColorGreen)
	case "LOW":
		return base.Foreground(ColorBlue)
	case "MEDIUM":
		return base.Foreground(ColorYellow)
	case "HIGH":
		return base.Foreground(ColorOrange)
	case "CRITICAL":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// AddressStyle returns a style for an address label: wallet addresses
// stand out from relayed mail.
func AddressStyle(isWallet bool) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	if isWallet {
		return base.Foreground(ColorMagenta)
	}
	return base.Foreground(ColorGreen)
}
