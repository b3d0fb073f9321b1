// Package viewer shows one message with its transfer details and, once
// requested, its security scan.
package viewer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/keys"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/scan"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Action is something the user asked to do with the open message.
type Action string

const (
	ActionStar  Action = "star"
	ActionTrash Action = "trash"
	ActionScan  Action = "scan"
	ActionReply Action = "reply"
)

// ActionMsg asks the parent to run an action on the open message.
type ActionMsg struct {
	Action Action
	Email  model.Email
}

// ScanResultMsg carries a finished security scan.
type ScanResultMsg struct {
	EmailID    string
	Assessment scan.Assessment
	Err        error
}

// Model is the message view component.
type Model struct {
	email    *model.Email
	viewport viewport.Model
	keys     *keys.KeyMap

	scanning   bool
	assessment *scan.Assessment
	scanErr    error

	width  int
	height int
}

// New creates a new viewer model.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// SetEmail shows e and forgets any previous scan.
func (m *Model) SetEmail(e model.Email) {
	m.email = &e
	m.scanning = false
	m.assessment = nil
	m.scanErr = nil
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Refresh redraws e if it is the open message, keeping the scroll
// position and scan.
func (m *Model) Refresh(e model.Email) {
	if m.email == nil || m.email.ID != e.ID {
		return
	}
	m.email = &e
	m.viewport.SetContent(m.renderContent())
}

// Email returns the open message.
func (m Model) Email() (model.Email, bool) {
	if m.email == nil {
		return model.Email{}, false
	}
	return *m.email, true
}

// SetScanning marks a scan of the open message as in flight.
func (m *Model) SetScanning() {
	m.scanning = true
	m.scanErr = nil
	m.viewport.SetContent(m.renderContent())
}

// Init returns the initial command for the viewer.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the viewer.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ScanResultMsg:
		if m.email == nil || msg.EmailID != m.email.ID {
			return m, nil
		}
		m.scanning = false
		m.scanErr = msg.Err
		if msg.Err == nil {
			a := msg.Assessment
			m.assessment = &a
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }
		case key.Matches(msg, m.keys.Star):
			return m, m.action(ActionStar)
		case key.Matches(msg, m.keys.Trash):
			return m, m.action(ActionTrash)
		case key.Matches(msg, m.keys.Scan):
			if m.scanning {
				return m, nil
			}
			return m, m.action(ActionScan)
		case key.Matches(msg, m.keys.Reply):
			return m, m.action(ActionReply)
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) action(a Action) tea.Cmd {
	if m.email == nil {
		return nil
	}
	e := *m.email
	return func() tea.Msg { return ActionMsg{Action: a, Email: e} }
}

// View renders the viewer.
func (m Model) View() string {
	if m.email == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No message selected")
	}
	return m.viewport.View()
}

func (m Model) renderContent() string {
	if m.email == nil {
		return ""
	}
	e := m.email
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	subject := e.Subject
	if e.IsStarred {
		subject = theme.StarStyle.Render("★ ") + subject
	}
	sections = append(sections, titleStyle.Render(subject))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	row := func(label, value string) string {
		return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-9s", label)), value)
	}

	from := theme.AddressStyle(strings.Contains(e.FromAddress, ":")).Render(e.FromAddress)
	if e.FromDisplayName != "" {
		from = e.FromDisplayName + " " + from
	}
	sections = append(sections,
		row("From:", from),
		row("To:", theme.AddressStyle(strings.Contains(e.ToAddress, ":")).Render(e.ToAddress)),
		row("Folder:", e.Folder.Title()),
	)
	if !e.CreatedAt.IsZero() {
		sections = append(sections, row("Date:", e.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	if e.HasTransfer() {
		value := theme.ValueStyle.Render(e.ValueTransferred.String() + " KAS")
		if e.TransferID != "" {
			value += metaStyle.Render("  tx " + wallet.Short(e.TransferID))
		}
		sections = append(sections, row("Value:", value))
	}
	for i, a := range e.Attachments {
		label := ""
		if i == 0 {
			label = "Files:"
		}
		sections = append(sections, row(label, fmt.Sprintf("%s (%s) %s", a.Name, humanSize(a.Size), a.URL)))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))

	if s := m.renderScan(); s != "" {
		sections = append(sections, "", sep, "", s)
	}

	sections = append(sections, "", sep, "")
	body := PlainText(e.Body)
	if body == "" {
		body = lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true).Render("(empty message)")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-2, 20)).Render(body))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderScan() string {
	switch {
	case m.scanning:
		return theme.HelpStyle.Render("Scanning message...")
	case m.scanErr != nil:
		return theme.ErrorStyle.Render("Scan failed: " + m.scanErr.Error())
	case m.assessment == nil:
		return ""
	}

	a := m.assessment
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render("Security scan") + " " +
			theme.ThreatStyle(string(a.ThreatLevel)).Render(string(a.ThreatLevel)),
		a.Explanation,
	}
	if len(a.ThreatsFound) > 0 {
		lines = append(lines, "", "Threats:")
		for _, t := range a.ThreatsFound {
			lines = append(lines, "  - "+t)
		}
	}
	if len(a.Recommendations) > 0 {
		lines = append(lines, "", "Recommendations:")
		for _, r := range a.Recommendations {
			lines = append(lines, "  - "+r)
		}
	}
	return lipgloss.NewStyle().Width(max(m.width-2, 20)).Render(strings.Join(lines, "\n"))
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// SetSize updates the viewer dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.email != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
