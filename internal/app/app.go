// Package app is the root Bubble Tea model: view routing, the session
// lifecycle and the wiring between views and the mailbox.
package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/addressbook"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/inbound"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/keys"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/mailbox"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/scan"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/session"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
	appsync "github.com/mrzeku2000XTTT/FluxKmail/internal/sync"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/ui"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/ui/command"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/ui/compose"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/ui/contacts"
	helpview "github.com/mrzeku2000XTTT/FluxKmail/internal/ui/help"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/ui/login"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/ui/maillist"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/ui/sources"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/ui/viewer"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewList
	ViewMessage
	ViewCompose
	ViewContacts
	ViewSources
	ViewHelp
	ViewCommand
)

// Deps are the services the TUI drives.
type Deps struct {
	Sessions *session.Manager
	Mailbox  *mailbox.Synchronizer
	Book     *addressbook.Book
	Scanner  *scan.Scanner
	Wallet   wallet.Provider
	Poller   *appsync.Poller
	Sources  *inbound.Registry
	Config   *model.AppConfig
}

// Model is the root Bubble Tea model.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	deps         Deps
	keys         *keys.KeyMap

	identity string

	login       login.Model
	mailList    maillist.Model
	viewer      viewer.Model
	compose     compose.Model
	contacts    contacts.Model
	sourcesView sources.Model
	helpView    helpview.Model
	commandView command.Model

	status string
	ready  bool
}

// New creates the root model. The poller must already hold its sources.
func New(d Deps) Model {
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewLogin,
		deps:        d,
		keys:        k,
		login:       login.New(d.Sessions, 80, 24),
		mailList:    maillist.New(d.Mailbox, k, 80, 24),
		viewer:      viewer.New(k, 80, 24),
		compose:     compose.New(d.Config.Wallet.AddressPrefixes, 80, 24),
		contacts:    contacts.New(d.Book, k, 80, 24),
		sourcesView: sources.New(d.Sources, k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
	}
}

// Init restores a persisted identity and starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.resolveIdentity(),
		m.deps.Poller.Start(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		h := m.layout.ContentHeight()
		m.login.SetSize(msg.Width, msg.Height)
		m.mailList.SetSize(m.layout.ContentWidth(), h)
		m.viewer.SetSize(m.layout.ContentWidth(), h)
		m.compose.SetSize(msg.Width, h)
		m.contacts.SetSize(msg.Width, h)
		m.sourcesView.SetSize(msg.Width, h)
		m.helpView.SetSize(msg.Width, h)
		m.commandView.SetSize(msg.Width, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case identityResolvedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}
		if msg.session == nil {
			return m, m.showLogin(msg.err)
		}
		return m, m.activate(msg.session)

	case login.LoggedInMsg:
		return m, m.activate(msg.Session)

	case login.QuitMsg:
		return m, m.quit()

	case disconnectedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}
		m.identity = ""
		m.helpView.SetIdentity("", "")
		m.helpView.SetTrusted(nil)
		return m, tea.Batch(
			m.mailList.SetIdentity(""),
			m.contacts.SetIdentity(""),
			m.showLogin(nil),
		)

	case trustedMsg:
		m.afterTrust(msg)
		return m, nil

	case appsync.SyncResultMsg:
		return m, tea.Batch(m.handleSync(msg), m.deps.Poller.WaitForNextResult())

	case maillist.EmailsLoadedMsg:
		var cmd tea.Cmd
		m.mailList, cmd = m.mailList.Update(msg)
		return m, cmd

	case maillist.OpenMsg:
		return m, m.open(msg.ID)

	case openedMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.viewer.SetEmail(msg.email)
		m.previousView = ViewList
		m.currentView = ViewMessage
		if !msg.email.IsRead && msg.email.ToAddress == m.identity {
			m.mailList.Patch([]string{msg.email.ID}, func(e *model.Email) { e.IsRead = true })
			return m, m.mutate(opMarkRead, msg.email.ID)
		}
		return m, nil

	case maillist.StarMsg:
		m.mailList.Patch([]string{msg.ID}, toggleStar)
		return m, m.mutate(opStar, msg.ID)

	case maillist.MarkReadMsg:
		return m, m.bulk(msg.IDs, mailbox.OpMarkRead)

	case maillist.TrashMsg:
		return m, m.bulk(msg.IDs, mailbox.OpMoveToTrash)

	case maillist.ScanMsg:
		if e, ok := m.mailList.Selected(); ok {
			m.viewer.SetEmail(e)
			m.previousView = ViewList
			m.currentView = ViewMessage
			m.viewer.SetScanning()
			return m, m.scan(e)
		}
		return m, nil

	case mutatedMsg:
		return m, m.afterMutation(msg)

	case bulkDoneMsg:
		return m, m.afterBulk(msg)

	case viewer.ActionMsg:
		return m, m.viewerAction(msg)

	case viewer.ScanResultMsg:
		var cmd tea.Cmd
		m.viewer, cmd = m.viewer.Update(msg)
		return m, cmd

	case viewer.BackMsg:
		m.currentView = ViewList
		return m, nil

	case compose.SubmitMsg:
		return m, m.send(msg.Draft)

	case sentMsg:
		if msg.err != nil {
			m.setError(msg.err)
			if msg.partial {
				m.currentView = ViewList
				return m, m.mailList.Load()
			}
			return m, m.compose.SetError(msg.err)
		}
		m.setStatus("Message sent to " + wallet.Short(msg.email.ToAddress))
		m.currentView = ViewList
		m.deps.Poller.RefreshSource(countsSourceID)
		return m, m.mailList.Load()

	case compose.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case contacts.ChangedMsg:
		m.compose.SetContacts(msg.Contacts)
		return m, nil

	case contacts.ComposeToMsg:
		m.previousView = ViewContacts
		m.currentView = ViewCompose
		return m, m.compose.StartTo(msg.Address)

	case contacts.CloseMsg:
		m.currentView = ViewList
		return m, nil

	case sources.SavedMsg:
		m.syncImporter(msg.ID, msg.Importer)
		return m, nil

	case sources.DeletedMsg:
		m.syncImporter(msg.ID, nil)
		return m, nil

	case sources.CloseMsg:
		m.currentView = ViewList
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case tea.KeyMsg:
		// A status stays up until the next key press.
		m.status = ""
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey runs keys that work outside a single view. Text entry
// views only get ctrl+c.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m.quit(), true
	}

	browsing := m.currentView == ViewList && !m.mailList.Searching()
	switch m.currentView {
	case ViewList, ViewMessage, ViewHelp, ViewCommand:
	default:
		return nil, false
	}
	if m.currentView == ViewList && m.mailList.Searching() {
		return nil, false
	}

	switch msg.String() {
	case "q":
		if browsing {
			return m.quit(), true
		}

	case "?":
		if m.currentView == ViewCommand {
			return nil, false
		}
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case ":":
		if m.currentView == ViewCommand {
			m.currentView = m.previousView
			return nil, true
		}
		if m.currentView == ViewHelp {
			return nil, false
		}
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true

	case "esc":
		if m.currentView == ViewHelp || m.currentView == ViewCommand {
			m.currentView = m.previousView
			return nil, true
		}
	}

	if !browsing {
		return nil, false
	}
	switch {
	case key.Matches(msg, m.keys.Compose):
		return m.startCompose(), true
	case key.Matches(msg, m.keys.Contacts):
		return m.openContacts(), true
	case key.Matches(msg, m.keys.Sources):
		return m.openSources(), true
	case key.Matches(msg, m.keys.Refresh):
		return m.refresh(), true
	}
	return nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.login, cmd = m.login.Update(msg)
	case ViewList:
		m.mailList, cmd = m.mailList.Update(msg)
	case ViewMessage:
		m.viewer, cmd = m.viewer.Update(msg)
	case ViewCompose:
		m.compose, cmd = m.compose.Update(msg)
	case ViewContacts:
		m.contacts, cmd = m.contacts.Update(msg)
	case ViewSources:
		m.sourcesView, cmd = m.sourcesView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.currentView == ViewLogin {
		return m.login.View()
	}

	header := m.layout.RenderHeader(m.title(), m.syncStatus())
	statusBar := m.layout.RenderStatusBar(m.keyHints())
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

func (m Model) title() string {
	t := "FluxKmail"
	if m.identity != "" {
		t += " " + wallet.Short(m.identity)
	}
	return t
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.layout.RenderColumns(m.mailList.Sidebar(), m.mailList.View())
	case ViewMessage:
		return m.layout.RenderColumns(m.mailList.Sidebar(), m.viewer.View())
	case ViewCompose:
		return m.compose.View()
	case ViewContacts:
		return m.contacts.View()
	case ViewSources:
		return m.sourcesView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the combined poll state.
func (m Model) syncStatus() string {
	running := 0
	var failing []string
	for _, s := range m.deps.Poller.GetStatuses() {
		switch s.State {
		case appsync.SyncRunning:
			running++
		case appsync.SyncError:
			failing = append(failing, s.SourceID)
		}
	}

	switch {
	case running > 0:
		return fmt.Sprintf("syncing (%d)", running)
	case len(failing) > 0:
		return "unreachable: " + strings.Join(failing, ", ")
	}
	return "idle"
}

// keyHints returns the status message when one is set, keyboard hints
// otherwise.
func (m Model) keyHints() string {
	if m.status != "" {
		return m.status
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewMessage:
		return "esc back | s star | d trash | x scan | R reply | j/k scroll"
	case ViewCompose:
		return "tab next field | enter submit | esc cancel"
	case ViewContacts:
		return "enter write | a add | t label | d delete | esc back"
	case ViewSources:
		return "enter test | a add | e edit | d delete | esc back"
	default:
		return "q quit | ? help | n new | / search | tab folder | space mark | m read | d trash | s star"
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
}

func (m *Model) setError(err error) {
	m.status = theme.ErrorStyle.Render("Error: " + userMessage(err))
}

func toggleStar(e *model.Email) { e.IsStarred = !e.IsStarred }
