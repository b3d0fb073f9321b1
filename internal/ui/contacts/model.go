// Package contacts is the address book view: contacts and labels of the
// signed-in identity.
package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/keys"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// Book is the address book the view edits.
type Book interface {
	Contacts(ctx context.Context, identity string) ([]model.Contact, error)
	AddContact(ctx context.Context, identity, name, address string) (model.Contact, error)
	DeleteContact(ctx context.Context, identity, id string) error
	Labels(ctx context.Context, identity string) ([]model.Label, error)
	CreateLabel(ctx context.Context, identity, name, color string) (model.Label, error)
}

// CloseMsg signals the parent to close the address book.
type CloseMsg struct{}

// ComposeToMsg asks the parent to start a message to Address.
type ComposeToMsg struct{ Address string }

// ChangedMsg carries the address book after a load or edit, for compose
// suggestions.
type ChangedMsg struct {
	Contacts []model.Contact
}

type mode int

const (
	modeList mode = iota
	modeContactForm
	modeLabelForm
	modeConfirmDelete
)

type formBindings struct {
	name    string
	address string
	color   string
	confirm bool
}

type loadedMsg struct {
	identity string
	contacts []model.Contact
	labels   []model.Label
	err      error
}

type savedMsg struct {
	status string
	err    error
}

// Model is the Bubble Tea model for the address book.
type Model struct {
	mode        mode
	book        Book
	keys        *keys.KeyMap
	identity    string
	contacts    []model.Contact
	labels      []model.Label
	selectedIdx int
	form        *huh.Form
	fb          *formBindings
	statusMsg   string
	width       int
	height      int
}

// New creates a new address book model.
func New(b Book, k *keys.KeyMap, width, height int) Model {
	return Model{
		mode:  modeList,
		book:  b,
		keys:  k,
		fb:    &formBindings{},
		width: width, height: height,
	}
}

// SetIdentity switches to identity's address book and reloads it.
func (m *Model) SetIdentity(identity string) tea.Cmd {
	m.identity = identity
	m.contacts = nil
	m.labels = nil
	m.selectedIdx = 0
	m.statusMsg = ""
	m.mode = modeList
	if identity == "" {
		return nil
	}
	return m.load()
}

// Contacts returns the loaded contacts.
func (m Model) Contacts() []model.Contact { return m.contacts }

// Init loads the address book.
func (m Model) Init() tea.Cmd {
	return m.load()
}

// CreateLabel saves a label without opening the form.
func (m Model) CreateLabel(name, color string) tea.Cmd {
	b, identity := m.book, m.identity
	return func() tea.Msg {
		_, err := b.CreateLabel(context.Background(), identity, name, color)
		return savedMsg{status: "Label " + name + " saved", err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		if msg.identity != m.identity {
			return m, nil
		}
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}
		m.contacts = msg.contacts
		m.labels = msg.labels
		if m.selectedIdx >= len(m.contacts) {
			m.selectedIdx = max(len(m.contacts)-1, 0)
		}
		contacts := m.contacts
		return m, func() tea.Msg { return ChangedMsg{Contacts: contacts} }

	case savedMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.statusMsg = msg.status
		}
		m.mode = modeList
		return m, m.load()

	case tea.KeyMsg:
		if m.mode == modeList {
			return m.handleListKey(msg)
		}
	}

	return m.updateForm(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return CloseMsg{} }

	case key.Matches(msg, m.keys.Down):
		if len(m.contacts) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(m.contacts)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.contacts) > 0 {
			m.selectedIdx--
			if m.selectedIdx < 0 {
				m.selectedIdx = len(m.contacts) - 1
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Select):
		if len(m.contacts) == 0 {
			return m, nil
		}
		addr := m.contacts[m.selectedIdx].TargetAddress
		return m, func() tea.Msg { return ComposeToMsg{Address: addr} }

	case msg.String() == "a":
		m.fb.name = ""
		m.fb.address = ""
		m.form = m.buildContactForm()
		m.mode = modeContactForm
		return m, m.form.Init()

	case msg.String() == "t":
		m.fb.name = ""
		m.fb.color = model.DefaultLabelColor
		m.form = m.buildLabelForm()
		m.mode = modeLabelForm
		return m, m.form.Init()

	case msg.String() == "d":
		if len(m.contacts) == 0 {
			return m, nil
		}
		m.fb.confirm = false
		m.form = m.buildConfirmForm()
		m.mode = modeConfirmDelete
		return m, m.form.Init()
	}
	return m, nil
}

func (m Model) buildContactForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Placeholder("optional").
				Value(&m.fb.name),
			huh.NewInput().
				Title("Address").
				Placeholder("kaspa:... or name@example.com").
				Value(&m.fb.address).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("address is required")
					}
					return nil
				}),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) buildLabelForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Label").
				Value(&m.fb.name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Color").
				Placeholder(model.DefaultLabelColor).
				Value(&m.fb.color),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) buildConfirmForm() *huh.Form {
	c := m.contacts[m.selectedIdx]
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete contact %q?", c.DisplayName)).
				Description(c.TargetAddress).
				Affirmative("Yes, delete").
				Negative("Cancel").
				Value(&m.fb.confirm),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.mode == modeList {
		return m, nil
	}
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		m.mode = modeList
		return m, nil
	case huh.StateCompleted:
		switch m.mode {
		case modeContactForm:
			return m, m.saveContact()
		case modeLabelForm:
			return m, m.CreateLabel(strings.TrimSpace(m.fb.name), strings.TrimSpace(m.fb.color))
		case modeConfirmDelete:
			if m.fb.confirm {
				return m, m.deleteContact(m.contacts[m.selectedIdx].ID)
			}
			m.mode = modeList
			return m, nil
		}
	}
	return m, cmd
}

// View renders the address book.
func (m Model) View() string {
	if m.mode != modeList && m.form != nil {
		return lipgloss.NewStyle().Padding(1, 2).Render(m.form.View())
	}
	return m.viewList()
}

func (m Model) viewList() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
	b.WriteString(titleStyle.Render("Contacts"))
	b.WriteString("\n\n")

	if len(m.contacts) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true).
			Render("No contacts yet. Press 'a' to add one."))
	} else {
		for i, c := range m.contacts {
			addr := theme.AddressStyle(strings.Contains(c.TargetAddress, ":")).Render(wallet.Short(c.TargetAddress))
			label := fmt.Sprintf("%-24s %s", c.DisplayName, addr)
			if i == m.selectedIdx {
				b.WriteString(theme.SelectedItemStyle.Render(label))
			} else {
				b.WriteString(theme.ListItemStyle.Render(label))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Labels"))
	b.WriteString("\n")
	if len(m.labels) == 0 {
		b.WriteString(theme.DimmedStyle.Render("none"))
	} else {
		chips := make([]string, len(m.labels))
		for i, l := range m.labels {
			chips[i] = lipgloss.NewStyle().
				Foreground(lipgloss.Color(l.Color)).
				Bold(true).
				Render("● " + l.Name)
		}
		b.WriteString(strings.Join(chips, "  "))
	}

	if m.statusMsg != "" {
		b.WriteString("\n\n")
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorYellow).Italic(true).Render(m.statusMsg))
	}

	b.WriteString("\n\n")
	b.WriteString(theme.DimmedStyle.Render(
		"enter write to | a add contact | t new label | d delete | esc back",
	))

	return lipgloss.NewStyle().Padding(1, 2).Width(m.width).Height(m.height).Render(b.String())
}

// SetSize updates dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func (m Model) formHeight() int {
	return max(m.height-4, 10)
}

func (m Model) load() tea.Cmd {
	b, identity := m.book, m.identity
	return func() tea.Msg {
		ctx := context.Background()
		contacts, err := b.Contacts(ctx, identity)
		if err != nil {
			return loadedMsg{identity: identity, err: err}
		}
		labels, err := b.Labels(ctx, identity)
		return loadedMsg{identity: identity, contacts: contacts, labels: labels, err: err}
	}
}

func (m Model) saveContact() tea.Cmd {
	b, identity, fb := m.book, m.identity, m.fb
	name, address := fb.name, fb.address
	return func() tea.Msg {
		_, err := b.AddContact(context.Background(), identity, name, address)
		return savedMsg{status: "Contact saved", err: err}
	}
}

func (m Model) deleteContact(id string) tea.Cmd {
	b, identity := m.book, m.identity
	return func() tea.Msg {
		err := b.DeleteContact(context.Background(), identity, id)
		return savedMsg{status: "Contact deleted", err: err}
	}
}
