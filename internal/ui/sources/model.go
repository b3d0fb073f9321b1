// Package sources manages the IMAP mailboxes imported into an identity's
// inbox.
package sources

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/inbound"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/keys"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// testTimeout bounds a connection test.
const testTimeout = 30 * time.Second

// Registry persists source entries.
type Registry interface {
	Sources() []model.SourceConfig
	Save(src model.SourceConfig, password string) (*inbound.Importer, error)
	Delete(id string) error
	Test(ctx context.Context, src model.SourceConfig, password string) error
}

// CloseMsg signals the parent to close the view.
type CloseMsg struct{}

// SavedMsg reports a saved source. Importer is nil when the source cannot
// be polled yet (disabled or no password).
type SavedMsg struct {
	ID       string
	Importer *inbound.Importer
}

// DeletedMsg reports a removed source.
type DeletedMsg struct{ ID string }

type mode int

const (
	modeList mode = iota
	modeForm
	modeTesting
	modeTestResult
	modeConfirmDelete
)

type formBindings struct {
	name     string
	addr     string
	username string
	password string
	mailbox  string
	security string
	target   string
	enabled  bool
	confirm  bool
}

type testedMsg struct {
	src      model.SourceConfig
	password string
	err      error
	save     bool
}

type savedMsg struct {
	src model.SourceConfig
	imp *inbound.Importer
	err error
}

type deletedMsg struct {
	id  string
	err error
}

// Model is the Bubble Tea model for the sources view.
type Model struct {
	mode        mode
	registry    Registry
	keys        *keys.KeyMap
	identity    string
	sources     []model.SourceConfig
	selectedIdx int

	// editing is the source being edited, nil for a new one.
	editing *model.SourceConfig
	form    *huh.Form
	fb      *formBindings

	spinner spinner.Model
	tested  *testedMsg
	status  string
	width   int
	height  int
}

// New creates the sources view.
func New(r Registry, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		registry: r,
		keys:     k,
		fb:       &formBindings{},
		spinner:  sp,
		width:    width,
		height:   height,
	}
}

// SetIdentity sets the default target of new sources.
func (m *Model) SetIdentity(identity string) {
	m.identity = identity
}

// Init reloads the list.
func (m *Model) Init() tea.Cmd {
	m.mode = modeList
	m.sources = m.registry.Sources()
	m.status = ""
	if m.selectedIdx >= len(m.sources) {
		m.selectedIdx = max(len(m.sources)-1, 0)
	}
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case testedMsg:
		if m.mode != modeTesting {
			return m, nil
		}
		if msg.err == nil && msg.save {
			return m, m.save(msg.src, msg.password)
		}
		m.tested = &msg
		m.mode = modeTestResult
		return m, nil

	case savedMsg:
		m.mode = modeList
		m.sources = m.registry.Sources()
		if msg.err != nil {
			m.status = fmt.Sprintf("Error saving source: %v", msg.err)
			return m, nil
		}
		m.status = fmt.Sprintf("Source %q saved", displayName(msg.src))
		if msg.imp == nil {
			m.status += " (not polled: disabled or no password)"
		}
		out := SavedMsg{ID: msg.src.ID, Importer: msg.imp}
		return m, func() tea.Msg { return out }

	case deletedMsg:
		m.mode = modeList
		m.sources = m.registry.Sources()
		if m.selectedIdx >= len(m.sources) {
			m.selectedIdx = max(len(m.sources)-1, 0)
		}
		if msg.err != nil {
			m.status = fmt.Sprintf("Error deleting source: %v", msg.err)
			return m, nil
		}
		m.status = "Source deleted"
		id := msg.id
		return m, func() tea.Msg { return DeletedMsg{ID: id} }

	case spinner.TickMsg:
		if m.mode != modeTesting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.mode {
		case modeList:
			return m.handleListKey(msg)
		case modeTesting:
			if key.Matches(msg, m.keys.Back) {
				m.mode = modeList
			}
			return m, nil
		case modeTestResult:
			return m.handleResultKey(msg)
		}
	}

	return m.updateForm(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return CloseMsg{} }

	case key.Matches(msg, m.keys.Down):
		if len(m.sources) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(m.sources)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.sources) > 0 {
			m.selectedIdx--
			if m.selectedIdx < 0 {
				m.selectedIdx = len(m.sources) - 1
			}
		}
		return m, nil

	case msg.String() == "a":
		m.editing = nil
		*m.fb = formBindings{mailbox: "INBOX", security: inbound.SecurityTLS, target: m.identity, enabled: true}
		return m.startForm()

	case msg.String() == "e":
		if len(m.sources) == 0 {
			return m, nil
		}
		src := m.sources[m.selectedIdx]
		m.editing = &src
		*m.fb = formBindings{
			name:     src.Name,
			addr:     src.BaseURL,
			username: src.Config["username"],
			mailbox:  src.Config["mailbox"],
			security: src.Config["security"],
			target:   src.Config["target_address"],
			enabled:  src.Enabled,
		}
		if m.fb.security == "" {
			m.fb.security = inbound.SecurityTLS
		}
		return m.startForm()

	case msg.String() == "d":
		if len(m.sources) == 0 {
			return m, nil
		}
		m.fb.confirm = false
		m.form = m.buildConfirmForm()
		m.mode = modeConfirmDelete
		return m, m.form.Init()

	case key.Matches(msg, m.keys.Select):
		if len(m.sources) == 0 {
			return m, nil
		}
		return m.startTest(m.sources[m.selectedIdx], "", false)
	}
	return m, nil
}

func (m Model) handleResultKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		if m.tested != nil && m.tested.err != nil {
			return m.startTest(m.tested.src, m.tested.password, m.tested.save)
		}
	case "s":
		// Keep a source whose server is unreachable right now.
		if m.tested != nil && m.tested.save {
			m.mode = modeTesting
			return m, m.save(m.tested.src, m.tested.password)
		}
	case "enter", "esc":
		m.mode = modeList
		m.tested = nil
	}
	return m, nil
}

func (m Model) startForm() (Model, tea.Cmd) {
	m.form = m.buildSourceForm()
	m.mode = modeForm
	return m, m.form.Init()
}

func (m Model) startTest(src model.SourceConfig, password string, save bool) (Model, tea.Cmd) {
	m.mode = modeTesting
	m.tested = nil
	r := m.registry
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		err := r.Test(ctx, src, password)
		return testedMsg{src: src, password: password, err: err, save: save}
	})
}

func (m Model) save(src model.SourceConfig, password string) tea.Cmd {
	r := m.registry
	return func() tea.Msg {
		imp, err := r.Save(src, password)
		return savedMsg{src: src, imp: imp, err: err}
	}
}

func (m Model) buildSourceForm() *huh.Form {
	passwordDesc := "Stored in the system keyring"
	if m.editing != nil {
		passwordDesc = "Leave empty to keep the stored password"
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Placeholder("Work mail").
				Value(&m.fb.name),
			huh.NewInput().
				Title("IMAP server").
				Placeholder("imap.example.com:993").
				Value(&m.fb.addr).
				Validate(validateHostPort),
			huh.NewInput().
				Title("Username").
				Value(&m.fb.username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description(passwordDesc).
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(func(s string) error {
					if m.editing == nil && s == "" {
						return fmt.Errorf("password is required")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Mailbox").
				Placeholder("INBOX").
				Value(&m.fb.mailbox),
			huh.NewSelect[string]().
				Title("Security").
				Options(
					huh.NewOption("TLS", inbound.SecurityTLS),
					huh.NewOption("STARTTLS", inbound.SecurityStartTLS),
					huh.NewOption("None", inbound.SecurityNone),
				).
				Value(&m.fb.security),
			huh.NewInput().
				Title("Deliver to").
				Description("Wallet address whose inbox receives imported mail").
				Value(&m.fb.target).
				Validate(validateRequired("Target address")),
			huh.NewConfirm().
				Title("Enabled").
				Value(&m.fb.enabled),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) buildConfirmForm() *huh.Form {
	src := m.sources[m.selectedIdx]
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete source %q?", displayName(src))).
				Description("Imported messages stay in the inbox.").
				Affirmative("Yes, delete").
				Negative("Cancel").
				Value(&m.fb.confirm),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || (m.mode != modeForm && m.mode != modeConfirmDelete) {
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
		if m.mode == modeConfirmDelete {
			if !m.fb.confirm {
				m.mode = modeList
				return m, nil
			}
			r, id := m.registry, m.sources[m.selectedIdx].ID
			return m, func() tea.Msg { return deletedMsg{id: id, err: r.Delete(id)} }
		}
		src := m.sourceFromForm()
		if !src.Enabled {
			m.mode = modeTesting
			return m, m.save(src, m.fb.password)
		}
		return m.startTest(src, m.fb.password, true)
	}
	return m, cmd
}

func (m Model) sourceFromForm() model.SourceConfig {
	src := model.SourceConfig{
		Type:    inbound.SourceIMAP,
		Name:    strings.TrimSpace(m.fb.name),
		BaseURL: strings.TrimSpace(m.fb.addr),
		Enabled: m.fb.enabled,
		Config: map[string]string{
			"username":       strings.TrimSpace(m.fb.username),
			"mailbox":        strings.TrimSpace(m.fb.mailbox),
			"security":       m.fb.security,
			"target_address": strings.TrimSpace(m.fb.target),
		},
	}
	if m.editing != nil {
		src.ID = m.editing.ID
		src.PollIntervalSec = m.editing.PollIntervalSec
	}
	return src
}

// View renders the current mode.
func (m Model) View() string {
	switch m.mode {
	case modeForm, modeConfirmDelete:
		if m.form != nil {
			return m.frame(m.form.View())
		}
	case modeTesting:
		return m.frame(fmt.Sprintf("%s Testing connection...\n\nPress esc to cancel.", m.spinner.View()))
	case modeTestResult:
		return m.viewResult()
	}
	return m.viewList()
}

func (m Model) viewList() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
	b.WriteString(titleStyle.Render("Imported mailboxes"))
	b.WriteString("\n\n")

	if len(m.sources) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true).
			Render("No mailboxes configured.\nPress 'a' to import one over IMAP."))
	} else {
		for i, src := range m.sources {
			b.WriteString(m.renderSource(i, src))
			b.WriteString("\n")
		}
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorYellow).Italic(true).Render(m.status))
	}

	b.WriteString("\n\n")
	b.WriteString(theme.HelpStyle.Render("a add | e edit | d delete | enter test | esc back"))
	return m.frame(b.String())
}

func (m Model) renderSource(idx int, src model.SourceConfig) string {
	state := lipgloss.NewStyle().Foreground(theme.ColorGreen).Render("enabled")
	if !src.Enabled {
		state = lipgloss.NewStyle().Foreground(theme.ColorGray).Render("disabled")
	}
	line := fmt.Sprintf("%-20s %-28s -> %s  %s",
		displayName(src), src.Config["username"]+"@"+src.BaseURL,
		wallet.Short(src.Config["target_address"]), state)

	if idx == m.selectedIdx {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

func (m Model) viewResult() string {
	t := m.tested
	if t == nil {
		return m.viewList()
	}
	if t.err == nil {
		ok := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorGreen).Render("Connection successful")
		return m.frame(ok + "\n\n" + theme.HelpStyle.Render("enter/esc back"))
	}

	hints := "r retry | enter/esc back"
	if t.save {
		hints = "r retry | s save anyway | enter/esc back"
	}
	failed := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorRed).Render("Connection failed")
	return m.frame(failed + "\n\n" + t.err.Error() + "\n\n" + theme.HelpStyle.Render(hints))
}

func (m Model) frame(content string) string {
	return lipgloss.NewStyle().Padding(1, 2).Width(m.width).Height(m.height).Render(content)
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

func displayName(src model.SourceConfig) string {
	if src.Name != "" {
		return src.Name
	}
	return src.ID
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateHostPort(s string) error {
	host, port, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil || host == "" || port == "" {
		return fmt.Errorf("use host:port, e.g. imap.example.com:993")
	}
	return nil
}
