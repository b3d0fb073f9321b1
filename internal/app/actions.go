package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/logging"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/mailbox"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/session"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/ui/viewer"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// opTimeout bounds a single write or open issued from the UI.
const opTimeout = 30 * time.Second

// sendTimeout leaves room for wallet approval of a transfer.
const sendTimeout = 3 * time.Minute

type identityResolvedMsg struct {
	session *session.Session
	err     error
}

type disconnectedMsg struct{ err error }

type trustedMsg struct {
	address string
	session *session.Session
	err     error
}

type openedMsg struct {
	email model.Email
	err   error
}

type mutation string

const (
	opStar     mutation = "star"
	opMarkRead mutation = "mark read"
	opTrash    mutation = "trash"
)

type mutatedMsg struct {
	op    mutation
	email model.Email
	err   error
}

type bulkDoneMsg struct {
	op     mailbox.Op
	result mailbox.BulkResult
	err    error
}

type sentMsg struct {
	email model.Email
	err   error

	// partial means the sent copy was stored but the recipient copy was
	// not, so the form must not be resubmitted.
	partial bool
}

func (m Model) resolveIdentity() tea.Cmd {
	sessions := m.deps.Sessions
	return func() tea.Msg {
		s, err := sessions.ResolveIdentity()
		return identityResolvedMsg{session: s, err: err}
	}
}

func (m *Model) showLogin(err error) tea.Cmd {
	m.currentView = ViewLogin
	return m.login.Start(err)
}

// activate switches every view to the session's identity.
func (m *Model) activate(s *session.Session) tea.Cmd {
	m.identity = s.Address
	accountID := ""
	if s.Account != nil {
		accountID = s.Account.AccountID
	}
	m.helpView.SetIdentity(s.Address, accountID)
	if s.Account != nil {
		m.helpView.SetTrusted(s.Account.TrustedAddresses)
	}
	m.compose.SetDisplayName(accountID)
	m.currentView = ViewList
	m.setStatus("Signed in as " + wallet.Short(s.Address))
	m.deps.Poller.RefreshSource(countsSourceID)

	return tea.Batch(
		m.mailList.SetIdentity(s.Address),
		m.contacts.SetIdentity(s.Address),
	)
}

func (m *Model) quit() tea.Cmd {
	m.deps.Poller.Stop()
	return tea.Quit
}

func (m Model) disconnect() tea.Cmd {
	sessions := m.deps.Sessions
	return func() tea.Msg {
		return disconnectedMsg{err: sessions.Disconnect()}
	}
}

// trust adds address to the signed in account's trusted addresses.
func (m Model) trust(address string) tea.Cmd {
	sessions := m.deps.Sessions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		s, err := sessions.AddTrustedAddress(ctx, address)
		return trustedMsg{address: address, session: s, err: err}
	}
}

func (m *Model) afterTrust(msg trustedMsg) {
	if msg.err != nil {
		m.setError(msg.err)
		return
	}
	if msg.session != nil && msg.session.Account != nil {
		m.helpView.SetTrusted(msg.session.Account.TrustedAddresses)
	}
	m.setStatus("Trusted " + wallet.Short(msg.address))
}

func (m *Model) refresh() tea.Cmd {
	m.deps.Poller.RefreshAll()
	return m.mailList.Load()
}

func (m Model) open(id string) tea.Cmd {
	mb, identity := m.deps.Mailbox, m.identity
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		e, err := mb.Get(ctx, identity, id)
		return openedMsg{email: e, err: err}
	}
}

func (m Model) mutate(op mutation, id string) tea.Cmd {
	mb, identity := m.deps.Mailbox, m.identity
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		var e model.Email
		var err error
		switch op {
		case opStar:
			e, err = mb.ToggleStar(ctx, identity, id)
		case opMarkRead:
			e, err = mb.MarkRead(ctx, identity, id)
		case opTrash:
			e, err = mb.MoveToTrash(ctx, identity, id)
		}
		return mutatedMsg{op: op, email: e, err: err}
	}
}

// afterMutation shows the settled state. The list re-reads so that a
// rolled back change reappears.
func (m *Model) afterMutation(msg mutatedMsg) tea.Cmd {
	switch {
	case errors.Is(msg.err, mailbox.ErrStaleMutation):
	case msg.err != nil:
		logging.Error("mutation", msg.err, logrus.Fields{"op": msg.op, "id": msg.email.ID})
		m.setError(fmt.Errorf("%s failed: %w", msg.op, msg.err))
	}
	if msg.email.ID != "" {
		m.viewer.Refresh(msg.email)
	}
	m.deps.Poller.RefreshSource(countsSourceID)
	return m.mailList.Load()
}

func (m *Model) bulk(ids []string, op mailbox.Op) tea.Cmd {
	if len(ids) == 0 {
		return nil
	}
	switch op {
	case mailbox.OpMarkRead:
		m.mailList.Patch(ids, func(e *model.Email) { e.IsRead = true })
	case mailbox.OpMoveToTrash:
		m.mailList.Patch(ids, func(e *model.Email) { e.Folder = model.FolderTrash })
	}

	mb, identity := m.deps.Mailbox, m.identity
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		res, err := mb.BulkApply(ctx, identity, ids, op)
		return bulkDoneMsg{op: op, result: res, err: err}
	}
}

func (m *Model) afterBulk(msg bulkDoneMsg) tea.Cmd {
	verb := "Marked read"
	if msg.op == mailbox.OpMoveToTrash {
		verb = "Moved to trash"
	}

	switch {
	case msg.err != nil:
		m.setError(msg.err)
	case msg.result.OK():
		m.setStatus(fmt.Sprintf("%s: %d", verb, len(msg.result.Succeeded)))
	default:
		first := msg.result.Failed[0].Err
		m.setError(fmt.Errorf("%s %d, %d failed: %w",
			strings.ToLower(verb), len(msg.result.Succeeded), len(msg.result.Failed), first))
	}

	m.mailList.ClearMarks()
	m.deps.Poller.RefreshSource(countsSourceID)
	return m.mailList.Load()
}

func (m *Model) viewerAction(msg viewer.ActionMsg) tea.Cmd {
	switch msg.Action {
	case viewer.ActionStar:
		m.mailList.Patch([]string{msg.Email.ID}, toggleStar)
		return m.mutate(opStar, msg.Email.ID)
	case viewer.ActionTrash:
		m.mailList.Patch([]string{msg.Email.ID}, func(e *model.Email) { e.Folder = model.FolderTrash })
		m.currentView = ViewList
		return m.mutate(opTrash, msg.Email.ID)
	case viewer.ActionScan:
		m.viewer.SetScanning()
		return m.scan(msg.Email)
	case viewer.ActionReply:
		m.previousView = ViewMessage
		m.currentView = ViewCompose
		return m.compose.StartReply(msg.Email)
	}
	return nil
}

func (m Model) scan(e model.Email) tea.Cmd {
	sc := m.deps.Scanner
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout*2)
		defer cancel()
		a, err := sc.Scan(ctx, e.Subject, viewer.PlainText(e.Body))
		return viewer.ScanResultMsg{EmailID: e.ID, Assessment: a, Err: err}
	}
}

func (m *Model) startCompose() tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewCompose
	return m.compose.Start()
}

func (m *Model) openSources() tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewSources
	m.sourcesView.SetIdentity(m.identity)
	return m.sourcesView.Init()
}

func (m *Model) openContacts() tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewContacts
	return m.contacts.Init()
}

// send moves the value first, when there is any, and only then stores the
// message carrying the transfer id.
func (m *Model) send(draft model.Draft) tea.Cmd {
	m.compose.SetSending(true)
	mb, w, identity := m.deps.Mailbox, m.deps.Wallet, m.identity
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if draft.Value.IsPositive() {
			tx, err := w.SendValue(ctx, draft.To, draft.Value)
			if err != nil {
				return sentMsg{err: fmt.Errorf("sending value: %w", err)}
			}
			draft.TransferID = tx
		}

		e, err := mb.SendEmail(ctx, identity, draft)
		return sentMsg{email: e, err: err, partial: err != nil && e.ID != ""}
	}
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	if f := model.Folder(cmd); f.Valid() {
		m.currentView = ViewList
		return m.mailList.SetFolder(f)
	}

	switch {
	case cmd == "compose" || cmd == "new":
		return m.startCompose()
	case cmd == "contacts":
		return m.openContacts()
	case cmd == "sources":
		return m.openSources()
	case strings.HasPrefix(cmd, "trust "):
		return m.trust(strings.TrimSpace(strings.TrimPrefix(cmd, "trust ")))
	case strings.HasPrefix(cmd, "label "):
		return m.createLabel(strings.TrimSpace(strings.TrimPrefix(cmd, "label ")))
	case cmd == "mark all read":
		m.currentView = ViewList
		return m.bulk(m.mailList.Unread(), mailbox.OpMarkRead)
	case cmd == "trash marked":
		m.currentView = ViewList
		return m.bulk(m.mailList.Marked(), mailbox.OpMoveToTrash)
	case cmd == "refresh" || cmd == "sync":
		return m.refresh()
	case cmd == "disconnect" || cmd == "logout":
		return m.disconnect()
	case cmd == "quit" || cmd == "q":
		return m.quit()
	}

	m.setError(fmt.Errorf("unknown command %q", cmd))
	return nil
}

// createLabel parses "name [#color]".
func (m *Model) createLabel(args string) tea.Cmd {
	if args == "" {
		m.setError(errors.New("usage: label <name> [#color]"))
		return nil
	}
	name, color := args, ""
	if i := strings.LastIndex(args, " #"); i > 0 {
		name, color = strings.TrimSpace(args[:i]), args[i+1:]
	}
	m.previousView = ViewList
	m.currentView = ViewContacts
	return m.contacts.CreateLabel(name, color)
}

// userMessage turns the error taxonomy into text a user can act on.
func userMessage(err error) string {
	switch {
	case errors.Is(err, wallet.ErrProviderUnavailable):
		return "no wallet found, install one from " + wallet.InstallURL
	case errors.Is(err, wallet.ErrUserRejected):
		return "request rejected in wallet"
	case errors.Is(err, session.ErrNoIdentity), errors.Is(err, mailbox.ErrNoIdentity):
		return "not connected, connect a wallet or log in"
	case entity.IsNetworkError(err):
		return "network problem, try again: " + err.Error()
	}
	return err.Error()
}
