// Package compose is the new message form.
package compose

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/mailbox"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// SubmitMsg carries a completed draft. The body is plain text; the
// synchronizer renders it.
type SubmitMsg struct {
	Draft model.Draft
}

// CancelMsg is dispatched when the user abandons the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	to          string
	subject     string
	body        string
	value       string
	displayName string
}

// Model is the Bubble Tea model for the compose form.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	prefixes []string
	contacts []model.Contact
	sending  bool
	err      error
	width    int
	height   int
}

// New creates a compose form. prefixes decide which recipients may
// receive value.
func New(prefixes []string, width, height int) Model {
	return Model{
		fb:       &formBindings{},
		prefixes: prefixes,
		width:    width,
		height:   height,
	}
}

// SetContacts offers the address book as recipient suggestions.
func (m *Model) SetContacts(contacts []model.Contact) {
	m.contacts = contacts
}

// SetDisplayName sets the sender name put on outgoing mail.
func (m *Model) SetDisplayName(name string) {
	m.fb.displayName = name
}

// Start opens an empty form.
func (m *Model) Start() tea.Cmd {
	return m.start("", "", "")
}

// StartTo opens a form addressed to a contact.
func (m *Model) StartTo(address string) tea.Cmd {
	return m.start(address, "", "")
}

// StartReply opens a form answering e.
func (m *Model) StartReply(e model.Email) tea.Cmd {
	subject := e.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	return m.start(e.FromAddress, subject, "")
}

func (m *Model) start(to, subject, body string) tea.Cmd {
	m.fb.to = to
	m.fb.subject = subject
	m.fb.body = body
	m.fb.value = ""
	m.sending = false
	m.err = nil
	m.form = m.buildForm()
	return m.form.Init()
}

// SetSending shows the form as submitted while the send runs.
func (m *Model) SetSending(sending bool) { m.sending = sending }

// SetError shows why the last send failed and reopens the form with the
// user's input intact.
func (m *Model) SetError(err error) tea.Cmd {
	m.sending = false
	m.err = err
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the compose form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.sending {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		draft, err := m.draft()
		if err != nil {
			return m, m.SetError(err)
		}
		m.sending = true
		return m, func() tea.Msg { return SubmitMsg{Draft: draft} }
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

func (m Model) draft() (model.Draft, error) {
	value, err := mailbox.ParseValue(m.fb.value)
	if err != nil {
		return model.Draft{}, err
	}
	return model.Draft{
		To:              strings.TrimSpace(m.fb.to),
		Subject:         strings.TrimSpace(m.fb.subject),
		Body:            m.fb.body,
		FromDisplayName: m.fb.displayName,
		Value:           value,
	}, nil
}

// View renders the compose form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("New Message")}
	if m.err != nil {
		parts = append(parts, theme.ErrorStyle.Render(m.err.Error()), "")
	}
	if m.sending {
		parts = append(parts, theme.HelpStyle.Render("Sending..."))
	} else {
		parts = append(parts, m.form.View())
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	suggestions := make([]string, 0, len(m.contacts))
	for _, c := range m.contacts {
		suggestions = append(suggestions, c.TargetAddress)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("To").
				Placeholder("kaspa:... or name@example.com").
				Suggestions(suggestions).
				Value(&m.fb.to).
				Validate(validateRecipient),
			huh.NewInput().
				Title("Subject").
				Value(&m.fb.subject).
				Validate(validateRequired("Subject")),
			huh.NewText().
				Title("Message").
				Value(&m.fb.body),
			huh.NewInput().
				Title("Send value (KAS)").
				Placeholder("optional, wallet recipients only").
				Value(&m.fb.value).
				Validate(m.validateValue),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m *Model) formWidth() int {
	w := m.width - 8
	if w < 40 {
		w = 40
	}
	return w
}

func (m *Model) formHeight() int {
	h := m.height - 6
	if h < 10 {
		h = 10
	}
	return h
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

func validateRecipient(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("recipient is required")
	}
	if strings.ContainsAny(s, " \t") {
		return errors.New("one recipient only")
	}
	return nil
}

func (m *Model) validateValue(s string) error {
	v, err := mailbox.ParseValue(s)
	if err != nil {
		return err
	}
	if v.IsNegative() {
		return errors.New("value cannot be negative")
	}
	if v.IsPositive() && !wallet.IsAddress(m.fb.to, m.prefixes) {
		return errors.New("value can only be sent to a wallet address")
	}
	return nil
}
