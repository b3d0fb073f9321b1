package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
)

// Layout splits the terminal into header, sidebar, content and status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int

	// SidebarWidth is the folder column, including its border. Zero on
	// narrow terminals.
	SidebarWidth int
}

// minSplitWidth is the narrowest terminal that still gets a sidebar.
const minSplitWidth = 70

// NewLayout sizes the frame for a width x height terminal.
func NewLayout(width, height int) Layout {
	l := Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
	if width >= minSplitWidth {
		l.SidebarWidth = 18
	}
	return l
}

// ContentWidth returns the width left of the sidebar.
func (l Layout) ContentWidth() int {
	return l.Width - l.SidebarWidth
}

// ContentHeight is what remains between header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// RenderHeader puts the title on the left and the sync status on the
// right of a full width bar.
func (l Layout) RenderHeader(title, syncStatus string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.HeaderStyle.Render(syncStatus)
	return lipgloss.JoinHorizontal(lipgloss.Top,
		left, l.pad(theme.HeaderStyle, left, right), right)
}

// RenderStatusBar renders hints as a full width bar.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, l.pad(theme.StatusBarStyle, rendered))
}

// pad fills whatever width the given parts leave with the style's
// background.
func (l Layout) pad(style lipgloss.Style, parts ...string) string {
	gap := l.Width
	for _, p := range parts {
		gap -= lipgloss.Width(p)
	}
	if gap <= 0 {
		return ""
	}
	return lipgloss.NewStyle().Width(gap).Background(style.GetBackground()).Render("")
}

// RenderColumns places the sidebar left of the content. Without a sidebar
// the content is returned as is.
func (l Layout) RenderColumns(sidebar, content string) string {
	if l.SidebarWidth == 0 {
		return content
	}
	side := theme.SidebarStyle.
		Width(l.SidebarWidth - 1).
		Height(l.ContentHeight()).
		Render(sidebar)
	return lipgloss.JoinHorizontal(lipgloss.Top, side, content)
}

// RenderWithFrame stacks header, content and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
