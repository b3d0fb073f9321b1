package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/keys"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/ui/command"
)

// Model is the help page: key bindings, palette commands and who is
// signed in.
type Model struct {
	keys     *keys.KeyMap
	help     help.Model
	identity string
	account  string
	trusted  []string
	width    int
	height   int
}

// New returns a help page sized to the terminal.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Update is a no-op; the page has no state of its own.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// SetIdentity records who is signed in, for the session footer.
func (m *Model) SetIdentity(address, accountID string) {
	m.identity = address
	m.account = accountID
}

// SetTrusted lists the extra addresses the account trusts.
func (m *Model) SetTrusted(addresses []string) {
	m.trusted = addresses
}

// View renders the page.
func (m Model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).MarginBottom(1).
		Render("Keys")

	m.help.Width = m.width - 4
	m.help.ShowAll = true

	names := make([]string, len(command.Commands))
	for i, c := range command.Commands {
		names[i] = strings.TrimSpace(c)
		switch names[i] {
		case "label":
			names[i] = "label <name> [#color]"
		case "trust":
			names[i] = "trust <address>"
		}
	}
	commands := theme.HelpStyle.Render("Commands (:): " + strings.Join(names, ", "))

	footer := "Not signed in"
	if m.identity != "" {
		footer = "Signed in as " + m.identity
		if m.account != "" {
			footer = "Signed in as " + m.account + " (" + m.identity + ")"
		}
		if len(m.trusted) > 0 {
			footer += ", trusting " + strings.Join(m.trusted, ", ")
		}
		footer += ". Wallet signatures are kept but not verified by the server."
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title, m.help.View(m.keys), "", commands, "", theme.DimmedStyle.Render(footer))
	return theme.DetailPanelStyle.Width(m.width - 4).Height(m.height - 4).Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
