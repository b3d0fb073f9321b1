// Package login is the signed-out screen: connect a wallet, log in to an
// account or register one.
package login

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/session"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/theme"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// Sessions is the part of the session manager the screen drives.
type Sessions interface {
	ConnectWallet(ctx context.Context) (*session.Session, error)
	LoginWithAccount(ctx context.Context, accountID, password string) (*session.Session, error)
	RegisterAccount(ctx context.Context, accountID, password, primaryAddress string) (*session.Session, error)
}

// LoggedInMsg carries the new session.
type LoggedInMsg struct {
	Session *session.Session
}

// QuitMsg asks the parent to exit.
type QuitMsg struct{}

type resultMsg struct {
	session *session.Session
	err     error
}

type mode int

const (
	modeChoose mode = iota
	modeAccount
	modeRegister
	modeWorking
)

const (
	choiceWallet   = "wallet"
	choiceAccount  = "account"
	choiceRegister = "register"
	choiceQuit     = "quit"
)

// walletTimeout leaves room for the user to approve in their wallet.
const walletTimeout = 2 * time.Minute

type formBindings struct {
	choice    string
	accountID string
	password  string
	address   string
}

// Model is the Bubble Tea model for the login screen.
type Model struct {
	mode     mode
	sessions Sessions
	form     *huh.Form
	fb       *formBindings
	spinner  spinner.Model
	working  string
	err      error
	width    int
	height   int
}

// New creates a login screen.
func New(s Sessions, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		sessions: s,
		fb:       &formBindings{},
		spinner:  sp,
		width:    width,
		height:   height,
	}
}

// Start shows the method chooser. err, when set, explains why the user
// is back here.
func (m *Model) Start(err error) tea.Cmd {
	m.err = err
	m.mode = modeChoose
	m.fb.choice = choiceWallet
	m.fb.password = ""
	m.form = m.buildChooser()
	return m.form.Init()
}

// Init shows the chooser.
func (m Model) Init() tea.Cmd {
	if m.form == nil {
		return nil
	}
	return m.form.Init()
}

// Update handles messages for the login screen.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resultMsg:
		if msg.err != nil {
			return m, m.Start(msg.err)
		}
		s := msg.session
		return m, func() tea.Msg { return LoggedInMsg{Session: s} }

	case spinner.TickMsg:
		if m.mode != modeWorking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.mode == modeWorking || m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		if m.mode == modeChoose {
			return m, func() tea.Msg { return QuitMsg{} }
		}
		return m, m.Start(nil)
	case huh.StateCompleted:
		return m.submit()
	}
	return m, cmd
}

func (m Model) submit() (Model, tea.Cmd) {
	s := m.sessions
	id := strings.TrimSpace(m.fb.accountID)
	password := m.fb.password
	address := strings.TrimSpace(m.fb.address)
	m.fb.password = ""

	switch m.mode {
	case modeChoose:
		switch m.fb.choice {
		case choiceQuit:
			return m, func() tea.Msg { return QuitMsg{} }
		case choiceAccount:
			m.mode = modeAccount
			m.form = m.buildAccountForm()
			return m, m.form.Init()
		case choiceRegister:
			m.mode = modeRegister
			m.form = m.buildRegisterForm()
			return m, m.form.Init()
		}
		return m.work("Waiting for wallet approval...", func(ctx context.Context) (*session.Session, error) {
			return s.ConnectWallet(ctx)
		})

	case modeAccount:
		return m.work("Logging in...", func(ctx context.Context) (*session.Session, error) {
			return s.LoginWithAccount(ctx, id, password)
		})

	case modeRegister:
		return m.work("Creating account...", func(ctx context.Context) (*session.Session, error) {
			return s.RegisterAccount(ctx, id, password, address)
		})
	}
	return m, nil
}

func (m Model) work(label string, fn func(context.Context) (*session.Session, error)) (Model, tea.Cmd) {
	m.mode = modeWorking
	m.working = label
	m.err = nil
	run := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), walletTimeout)
		defer cancel()
		s, err := fn(ctx)
		return resultMsg{session: s, err: err}
	}
	return m, tea.Batch(m.spinner.Tick, run)
}

func (m *Model) buildChooser() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Sign in").
				Options(
					huh.NewOption("Connect wallet", choiceWallet),
					huh.NewOption("Log in with account", choiceAccount),
					huh.NewOption("Create account", choiceRegister),
					huh.NewOption("Quit", choiceQuit),
				).
				Value(&m.fb.choice),
		),
	).WithWidth(m.formWidth())
}

func (m *Model) buildAccountForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Account ID").
				Value(&m.fb.accountID).
				Validate(required("account id")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(required("password")),
		),
	).WithWidth(m.formWidth())
}

func (m *Model) buildRegisterForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Account ID").
				Description("3 to 50 characters").
				Value(&m.fb.accountID).
				Validate(required("account id")),
			huh.NewInput().
				Title("Password").
				Description("at least 8 characters").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(required("password")),
			huh.NewInput().
				Title("Primary wallet address").
				Placeholder("kaspa:...").
				Value(&m.fb.address).
				Validate(required("primary address")),
		),
	).WithWidth(m.formWidth())
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

// View renders the login screen.
func (m Model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).
		Render("FluxKmail")
	sub := theme.DimmedStyle.Render("Mail between wallets, with value attached.")

	parts := []string{title, sub, ""}
	if m.err != nil {
		parts = append(parts, theme.ErrorStyle.Render(m.err.Error()))
		if errors.Is(m.err, wallet.ErrProviderUnavailable) {
			parts = append(parts, theme.HelpStyle.Render("Get a wallet at "+wallet.InstallURL))
		}
		parts = append(parts, "")
	}

	switch {
	case m.mode == modeWorking:
		parts = append(parts, m.spinner.View()+" "+m.working)
	case m.form != nil:
		parts = append(parts, m.form.View())
	}

	box := theme.DetailPanelStyle.Width(m.formWidth() + 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// SetSize updates the screen dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	return min(max(m.width-12, 30), 60)
}
