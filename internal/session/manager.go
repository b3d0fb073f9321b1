// Package session owns the active identity: who is logged in, how they got
// there, and what gets persisted between runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/credential"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// State is the position in the login lifecycle.
type State int

const (
	Anonymous State = iota
	Connecting
	Active
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session is the active identity. The address is the only credential the
// entity store sees.
type Session struct {
	Address string

	// Account is set for username/password logins. It never carries the
	// password hash.
	Account *model.Account

	// Signature is the wallet's signature over the login challenge. Nothing
	// verifies it; it is kept for display and future server checks.
	Signature string

	Since time.Time
}

// Invalidator drops everything cached for the previous identity.
type Invalidator interface {
	Reset()
}

// Options tune a Manager.
type Options struct {
	// SignChallenge asks the wallet to sign a login challenge on connect.
	SignChallenge bool

	// HashCost is the bcrypt cost for new accounts. Zero means
	// bcrypt.DefaultCost.
	HashCost int
}

// Manager runs the Anonymous -> Connecting -> Active lifecycle.
type Manager struct {
	store    entity.Store
	creds    credential.Store
	provider wallet.Provider
	opts     Options
	now      func() time.Time

	// transition serializes connect, login, register and disconnect.
	transition sync.Mutex

	mu           sync.RWMutex
	state        State
	current      *Session
	invalidators []Invalidator
}

// NewManager returns a Manager in the Anonymous state. Call ResolveIdentity
// to pick up a persisted login.
func NewManager(store entity.Store, creds credential.Store, provider wallet.Provider, opts Options) *Manager {
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	return &Manager{
		store:    store,
		creds:    creds,
		provider: provider,
		opts:     opts,
		now:      time.Now,
	}
}

// OnInvalidate registers a cache to reset whenever the identity goes away
// or changes.
func (m *Manager) OnInvalidate(inv Invalidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidators = append(m.invalidators, inv)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session returns a copy of the active session, or nil.
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	if cp.Account != nil {
		acct := cp.Account.Public()
		cp.Account = &acct
	}
	return &cp
}

// Require returns the active address or ErrNoIdentity.
func (m *Manager) Require() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Active || m.current == nil {
		return "", ErrNoIdentity
	}
	return m.current.Address, nil
}

// ResolveIdentity loads the persisted identity without touching the
// network. It returns nil when nobody is logged in.
func (m *Manager) ResolveIdentity() (*Session, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	address, err := m.creds.Get(credential.KeyWallet)
	if errors.Is(err, credential.ErrNotFound) || (err == nil && address == "") {
		m.set(Anonymous, nil)
		return nil, nil
	}
	if err != nil {
		m.set(Anonymous, nil)
		return nil, fmt.Errorf("reading persisted identity: %w", err)
	}

	s := &Session{Address: address, Since: m.now()}

	raw, err := m.creds.Get(credential.KeyAccount)
	switch {
	case err == nil && raw != "":
		var acct model.Account
		if jsonErr := json.Unmarshal([]byte(raw), &acct); jsonErr != nil {
			logrus.WithError(jsonErr).Warn("discarding unreadable persisted account")
		} else {
			acct = acct.Public()
			s.Account = &acct
		}
	case err != nil && !errors.Is(err, credential.ErrNotFound):
		return nil, fmt.Errorf("reading persisted account: %w", err)
	}

	m.set(Active, s)
	logrus.WithField("address", wallet.Short(address)).Info("identity restored")
	return m.Session(), nil
}

// ConnectWallet asks the wallet for its accounts and activates the first.
func (m *Manager) ConnectWallet(ctx context.Context) (*Session, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.begin()

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		return nil, m.fail(fmt.Errorf("connecting wallet: %w", err))
	}
	if len(accounts) == 0 {
		return nil, m.fail(wallet.ErrUserRejected)
	}
	address := accounts[0]

	s := &Session{Address: address, Since: m.now()}

	if m.opts.SignChallenge {
		challenge := fmt.Sprintf("Sign in to Kmail\naddress: %s\ntimestamp: %d", address, s.Since.Unix())
		sig, err := m.provider.SignMessage(ctx, challenge)
		switch {
		case errors.Is(err, wallet.ErrUserRejected):
			return nil, m.fail(fmt.Errorf("signing login challenge: %w", err))
		case err != nil:
			logrus.WithError(err).Warn("wallet could not sign login challenge, continuing unsigned")
		default:
			s.Signature = sig
			logrus.WithField("address", wallet.Short(address)).
				Warn("login signature recorded but not verified, identity is trusted on first use")
		}
	}

	if err := m.persist(address, nil); err != nil {
		return nil, m.fail(err)
	}

	m.set(Active, s)
	logrus.WithField("address", wallet.Short(address)).Info("wallet connected")
	return m.Session(), nil
}

// LoginWithAccount checks the password of accountID and activates the
// account's primary address.
func (m *Manager) LoginWithAccount(ctx context.Context, accountID, password string) (*Session, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.begin()

	rec, err := m.findAccount(ctx, accountID)
	if err != nil {
		return nil, m.fail(err)
	}
	if rec == nil {
		return nil, m.fail(ErrNotFound)
	}

	acct, err := entity.Decode[model.Account](rec)
	if err != nil {
		return nil, m.fail(err)
	}
	if !checkPassword(acct.PasswordHash, legacyPassword(rec), password) {
		logrus.WithField("account_id", accountID).Warn("failed login")
		return nil, m.fail(ErrInvalidCredentials)
	}

	return m.activateAccount(acct)
}

// RegisterAccount creates an account bound to primaryAddress and logs in.
func (m *Manager) RegisterAccount(ctx context.Context, accountID, password, primaryAddress string) (*Session, error) {
	if err := validateRegistration(accountID, password, primaryAddress); err != nil {
		return nil, err
	}

	m.transition.Lock()
	defer m.transition.Unlock()

	m.begin()

	existing, err := m.findAccount(ctx, accountID)
	if err != nil {
		return nil, m.fail(err)
	}
	if existing != nil {
		return nil, m.fail(ErrAlreadyExists)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.opts.HashCost)
	if err != nil {
		return nil, m.fail(fmt.Errorf("hashing password: %w", err))
	}

	rec, err := m.store.Create(ctx, entity.KindAccount, entity.Record{
		"account_id":        accountID,
		"password_hash":     string(hash),
		"primary_address":   primaryAddress,
		"trusted_addresses": []string{},
	})
	if err != nil {
		return nil, m.fail(fmt.Errorf("creating account: %w", err))
	}

	acct, err := entity.Decode[model.Account](rec)
	if err != nil {
		return nil, m.fail(err)
	}

	logrus.WithField("account_id", accountID).Info("account registered")
	return m.activateAccount(acct)
}

// Disconnect clears the persisted identity and every cached view.
func (m *Manager) Disconnect() error {
	m.transition.Lock()
	defer m.transition.Unlock()

	err := m.clearPersisted()
	m.set(Anonymous, nil)
	m.invalidate()

	logrus.Info("disconnected")
	return err
}

func (m *Manager) activateAccount(acct model.Account) (*Session, error) {
	pub := acct.Public()
	if err := m.persist(pub.PrimaryAddress, &pub); err != nil {
		return nil, m.fail(err)
	}

	m.set(Active, &Session{Address: pub.PrimaryAddress, Account: &pub, Since: m.now()})
	logrus.WithFields(logrus.Fields{
		"account_id": pub.AccountID,
		"address":    wallet.Short(pub.PrimaryAddress),
	}).Info("account logged in")
	return m.Session(), nil
}

func (m *Manager) findAccount(ctx context.Context, accountID string) (entity.Record, error) {
	recs, err := m.store.Filter(ctx, entity.KindAccount, entity.Predicate{"account_id": accountID}, "")
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// begin enters Connecting. Leaving an active identity invalidates its
// caches first so nothing leaks into the next one.
func (m *Manager) begin() {
	m.mu.Lock()
	wasActive := m.state == Active
	m.state = Connecting
	m.mu.Unlock()

	if wasActive {
		m.invalidate()
	}
}

// fail returns to Anonymous with nothing persisted.
func (m *Manager) fail(err error) error {
	if clearErr := m.clearPersisted(); clearErr != nil {
		logrus.WithError(clearErr).Warn("clearing persisted identity")
	}
	m.set(Anonymous, nil)
	return err
}

func (m *Manager) set(state State, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.current = s
}

func (m *Manager) invalidate() {
	m.mu.RLock()
	invs := append([]Invalidator(nil), m.invalidators...)
	m.mu.RUnlock()

	for _, inv := range invs {
		inv.Reset()
	}
}

func (m *Manager) persist(address string, acct *model.Account) error {
	if err := m.creds.Set(credential.KeyWallet, address); err != nil {
		return fmt.Errorf("persisting identity: %w", err)
	}
	if acct == nil {
		return m.creds.Delete(credential.KeyAccount)
	}
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encoding account: %w", err)
	}
	if err := m.creds.Set(credential.KeyAccount, string(data)); err != nil {
		return fmt.Errorf("persisting account: %w", err)
	}
	return nil
}

func (m *Manager) clearPersisted() error {
	return errors.Join(
		m.creds.Delete(credential.KeyWallet),
		m.creds.Delete(credential.KeyAccount),
	)
}
