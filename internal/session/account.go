package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/credential"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/validate"
)

type registration struct {
	AccountID      string `json:"account_id" validate:"required,min=3,max=64"`
	Password       string `json:"password" validate:"required,min=6"`
	PrimaryAddress string `json:"primary_address" validate:"required,wallet"`
}

func validateRegistration(accountID, password, primaryAddress string) error {
	return validate.Struct(registration{
		AccountID:      strings.TrimSpace(accountID),
		Password:       password,
		PrimaryAddress: strings.TrimSpace(primaryAddress),
	})
}

// checkPassword compares in constant time. Accounts created before hashing
// was introduced carry the plain secret in a "password" field.
func checkPassword(hash, legacy, password string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	if legacy == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(legacy), []byte(password)) == 1
}

func legacyPassword(rec entity.Record) string {
	pw, _ := rec["password"].(string)
	return pw
}

// AddTrustedAddress lets the logged-in account receive as one more address.
func (m *Manager) AddTrustedAddress(ctx context.Context, address string) (*Session, error) {
	m.transition.Lock()
	defer m.transition.Unlock()

	current := m.Session()
	if current == nil {
		return nil, ErrNoIdentity
	}
	if current.Account == nil || current.Account.ID == "" {
		return nil, ErrNoAccount
	}

	address = strings.TrimSpace(address)
	if err := validate.Struct(struct {
		Address string `json:"address" validate:"required,wallet"`
	}{address}); err != nil {
		return nil, err
	}

	acct := *current.Account
	if address == acct.PrimaryAddress || slices.Contains(acct.TrustedAddresses, address) {
		return current, nil
	}
	if len(acct.TrustedAddresses) >= model.MaxTrustedAddresses {
		return nil, ErrTooManyAddresses
	}

	trusted := append(slices.Clone(acct.TrustedAddresses), address)
	rec, err := m.store.Update(ctx, entity.KindAccount, acct.ID, entity.Record{"trusted_addresses": trusted})
	if err != nil {
		return nil, fmt.Errorf("saving trusted address: %w", err)
	}
	updated, err := entity.Decode[model.Account](rec)
	if err != nil {
		return nil, err
	}
	pub := updated.Public()

	data, err := json.Marshal(pub)
	if err != nil {
		return nil, fmt.Errorf("encoding account: %w", err)
	}
	if err := m.creds.Set(credential.KeyAccount, string(data)); err != nil {
		return nil, fmt.Errorf("persisting account: %w", err)
	}

	m.mu.Lock()
	if m.current != nil {
		m.current.Account = &pub
	}
	m.mu.Unlock()

	logrus.WithField("account_id", pub.AccountID).Info("trusted address added")
	return m.Session(), nil
}
