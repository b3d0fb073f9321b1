package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
)

// CommandMsg carries a submitted command, lower-cased and trimmed.
type CommandMsg string

// Commands lists the palette's known commands, offered as suggestions.
var Commands = []string{
	"inbox", "starred", "sent", "drafts", "spam", "trash", "all",
	"compose", "contacts", "sources", "label ", "trust ", "mark all read", "trash marked",
	"refresh", "disconnect", "quit",
}

// Model is the ":" palette.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

func New(width, height int) Model {
	in := textinput.New()
	in.Prompt = ": "
	in.Placeholder = "folder name or command"
	in.ShowSuggestions = true
	in.SetSuggestions(Commands)
	in.Focus()

	m := Model{input: in}
	m.SetSize(width, height)
	return m
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "enter" {
		line := strings.ToLower(strings.TrimSpace(m.input.Value()))
		m.input.Reset()
		if line == "" {
			return m, nil
		}
		return m, func() tea.Msg { return CommandMsg(line) }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Render("Command")
	hint := theme.HelpStyle.Render("tab completes, enter runs, esc closes")
	return theme.DetailPanelStyle.Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", m.input.View(), hint))
}

// SetSize fits the palette to the terminal.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus returns the cursor blink command.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
