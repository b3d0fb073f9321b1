// Package maillist is the folder view: a sidebar of folders and the
// messages of the selected one.
package maillist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/keys"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/mailbox"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
)

// Mailbox is the part of the synchronizer the list reads from.
type Mailbox interface {
	SelectFolder(ctx context.Context, identity string, folder model.Folder, query string) ([]model.Email, error)
	Cached(identity string, folder model.Folder, query string) ([]model.Email, bool)
}

// EmailsLoadedMsg is sent when a folder read completes.
type EmailsLoadedMsg struct {
	Identity string
	Folder   model.Folder
	Query    string
	Emails   []model.Email
	Err      error
}

// OpenMsg asks to show a message.
type OpenMsg struct{ ID string }

// StarMsg asks to toggle a message's star.
type StarMsg struct{ ID string }

// MarkReadMsg asks to mark messages read.
type MarkReadMsg struct{ IDs []string }

// TrashMsg asks to move messages to trash.
type TrashMsg struct{ IDs []string }

// ScanMsg asks for a security scan of a message.
type ScanMsg struct{ ID string }

// Model is the main mail list view component.
type Model struct {
	list        list.Model
	mailbox     Mailbox
	keys        *keys.KeyMap
	identity    string
	folder      model.Folder
	query       string
	counts      model.FolderCounts
	marked      map[string]bool
	loading     bool
	err         error
	searchMode  bool
	searchInput textinput.Model
	width       int
	height      int
}

// New creates a new mail list model.
func New(mb Mailbox, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = model.FolderInbox.Title()
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search subject, sender, body..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		mailbox:     mb,
		keys:        k,
		folder:      model.FolderInbox,
		marked:      make(map[string]bool),
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// SetIdentity switches the list to identity's mailbox and clears every
// per-identity state.
func (m *Model) SetIdentity(identity string) tea.Cmd {
	m.identity = identity
	m.folder = model.FolderInbox
	m.query = ""
	m.counts = nil
	m.marked = make(map[string]bool)
	m.err = nil
	m.list.Title = m.folder.Title()
	m.list.SetItems(nil)
	if identity == "" {
		return nil
	}
	return m.Load()
}

// Folder returns the folder on screen.
func (m Model) Folder() model.Folder { return m.folder }

// Query returns the active search.
func (m Model) Query() string { return m.query }

// SetFolder switches folders and loads the new one.
func (m *Model) SetFolder(f model.Folder) tea.Cmd {
	if !f.Valid() {
		return nil
	}
	m.folder = f
	m.marked = make(map[string]bool)
	m.list.Title = f.Title()
	m.list.ResetSelected()
	return m.Load()
}

// SetCounts updates the sidebar badges.
func (m *Model) SetCounts(c model.FolderCounts) { m.counts = c }

// Marked returns the ids marked for a bulk action, in list order.
func (m Model) Marked() []string {
	var ids []string
	for _, it := range m.list.Items() {
		if e, ok := it.(EmailItem); ok && m.marked[e.Email.ID] {
			ids = append(ids, e.Email.ID)
		}
	}
	return ids
}

// ClearMarks unmarks everything.
func (m *Model) ClearMarks() {
	m.marked = make(map[string]bool)
	m.refreshItems()
}

// Unread returns the ids of unread messages on screen.
func (m Model) Unread() []string {
	var ids []string
	for _, it := range m.list.Items() {
		if e, ok := it.(EmailItem); ok && !e.Email.IsRead {
			ids = append(ids, e.Email.ID)
		}
	}
	return ids
}

// Selected returns the message under the cursor.
func (m Model) Selected() (model.Email, bool) {
	it, ok := m.list.SelectedItem().(EmailItem)
	if !ok {
		return model.Email{}, false
	}
	return it.Email, true
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool { return m.searchMode }

// Init returns a command that loads the initial folder.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Load returns a tea.Cmd that reads the current folder. The cached view,
// with local changes applied, is shown right away when there is one.
func (m *Model) Load() tea.Cmd {
	if m.identity == "" {
		return nil
	}
	if cached, ok := m.mailbox.Cached(m.identity, m.folder, m.query); ok {
		m.setEmails(cached)
	}
	m.loading = true

	mb := m.mailbox
	identity, folder, query := m.identity, m.folder, m.query
	return func() tea.Msg {
		emails, err := mb.SelectFolder(context.Background(), identity, folder, query)
		return EmailsLoadedMsg{Identity: identity, Folder: folder, Query: query, Emails: emails, Err: err}
	}
}

// ShowCached redraws from the synchronizer cache without a read.
func (m *Model) ShowCached() bool {
	cached, ok := m.mailbox.Cached(m.identity, m.folder, m.query)
	if ok {
		m.setEmails(cached)
	}
	return ok
}

// Patch edits the on-screen copy of each id ahead of the store write. A
// message that no longer belongs in the folder leaves the list.
func (m *Model) Patch(ids []string, edit func(*model.Email)) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	items := m.list.Items()
	kept := make([]list.Item, 0, len(items))
	for _, it := range items {
		e, ok := it.(EmailItem)
		if !ok || !want[e.Email.ID] {
			kept = append(kept, it)
			continue
		}
		edit(&e.Email)
		if !mailbox.Matches(m.identity, m.folder, e.Email) {
			delete(m.marked, e.Email.ID)
			continue
		}
		kept = append(kept, e)
	}
	m.list.SetItems(kept)
}

// Update handles messages for the mail list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EmailsLoadedMsg:
		if msg.Identity != m.identity || msg.Folder != m.folder || msg.Query != m.query {
			return m, nil
		}
		m.loading = false
		if errors.Is(msg.Err, context.Canceled) {
			return m, nil
		}
		m.err = msg.Err
		if msg.Err == nil {
			m.setEmails(msg.Emails)
		}
		return m, nil

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) setEmails(emails []model.Email) {
	present := make(map[string]bool, len(emails))
	items := make([]list.Item, len(emails))
	for i, e := range emails {
		present[e.ID] = true
		items[i] = EmailItem{
			Email:    e,
			Marked:   m.marked[e.ID],
			Outgoing: m.folder == model.FolderSent || (e.FromAddress == m.identity && e.ToAddress != m.identity),
		}
	}
	for id := range m.marked {
		if !present[id] {
			delete(m.marked, id)
		}
	}
	m.list.SetItems(items)
}

func (m *Model) refreshItems() {
	items := m.list.Items()
	for i, it := range items {
		if e, ok := it.(EmailItem); ok {
			e.Marked = m.marked[e.Email.ID]
			items[i] = e
		}
	}
	m.list.SetItems(items)
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.query = strings.TrimSpace(m.searchInput.Value())
		return m, m.Load()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		if m.query == "" {
			return m, nil
		}
		m.query = ""
		return m, m.Load()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.SetValue(m.query)
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.NextFolder):
		return m, m.SetFolder(m.shiftFolder(1))

	case key.Matches(msg, m.keys.PrevFolder):
		return m, m.SetFolder(m.shiftFolder(-1))

	case key.Matches(msg, m.keys.Mark):
		if e, ok := m.Selected(); ok {
			if m.marked[e.ID] {
				delete(m.marked, e.ID)
			} else {
				m.marked[e.ID] = true
			}
			m.refreshItems()
			m.list.CursorDown()
		}
		return m, nil
	}

	e, ok := m.Selected()
	if ok {
		switch {
		case key.Matches(msg, m.keys.Select):
			return m, emit(OpenMsg{ID: e.ID})
		case key.Matches(msg, m.keys.Star):
			return m, emit(StarMsg{ID: e.ID})
		case key.Matches(msg, m.keys.MarkRead):
			return m, emit(MarkReadMsg{IDs: m.targets(e.ID)})
		case key.Matches(msg, m.keys.Trash):
			return m, emit(TrashMsg{IDs: m.targets(e.ID)})
		case key.Matches(msg, m.keys.Scan):
			return m, emit(ScanMsg{ID: e.ID})
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// targets is the marked set, or the selected message when nothing is
// marked.
func (m Model) targets(selected string) []string {
	if ids := m.Marked(); len(ids) > 0 {
		return ids
	}
	return []string{selected}
}

func (m Model) shiftFolder(delta int) model.Folder {
	idx := 0
	for i, f := range model.Folders {
		if f == m.folder {
			idx = i
		}
	}
	n := len(model.Folders)
	return model.Folders[((idx+delta)%n+n)%n]
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

// Sidebar renders the folder column with badges.
func (m Model) Sidebar() string {
	lines := make([]string, 0, len(model.Folders))
	for _, f := range model.Folders {
		label := f.Title()
		if n := m.counts[f]; n > 0 {
			label = fmt.Sprintf("%s (%d)", label, n)
		}
		lines = append(lines, theme.FolderStyle(f == m.folder).Render(label))
	}
	return strings.Join(lines, "\n")
}

// View renders the mail list view.
func (m Model) View() string {
	var top string
	switch {
	case m.searchMode:
		top = lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
	case m.err != nil:
		top = theme.ErrorStyle.Padding(0, 1).Render("Could not load " + m.folder.Title() + ": " + m.err.Error())
	case m.query != "":
		top = theme.HelpStyle.Padding(0, 1).Render("search: " + m.query + " (esc in / to clear)")
	}

	body := m.list.View()
	if len(m.list.Items()) == 0 {
		body = m.renderEmptyState()
	}
	if top == "" {
		return body
	}
	return lipgloss.JoinVertical(lipgloss.Left, top, body)
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height - 2).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.identity == "":
		return style.Render("Not signed in.")
	case m.loading:
		return style.Render("Loading " + m.folder.Title() + "...")
	case m.query != "":
		return style.Render("No messages match \"" + m.query + "\".")
	}
	return style.Render("No messages in " + m.folder.Title() + ".\n\nPress n to compose.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
