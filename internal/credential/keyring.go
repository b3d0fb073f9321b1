// Package credential keeps secrets and the persisted identity in the system
// keyring.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "kmail"

// Well-known keys.
const (
	KeyWallet       = "kmail_wallet"
	KeyAccount      = "kmail_account"
	KeyRelayAPI     = "relay-api-key"
	KeyBackendAPI   = "backend-api-key"
	KeyAnthropicAPI = "anthropic-api-key"
	KeyInboundAPI   = "inbound-api-key"
	KeySMTPPassword = "smtp-password"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes string secrets by key.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Keyring is a Store backed by a keyring.Keyring.
type Keyring struct {
	ring keyring.Keyring
}

// Open returns a Keyring on the platform's preferred backend, falling back
// to an encrypted file under dir.
func Open(dir string) (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("kmail-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// Get retrieves a credential value by key.
func (k *Keyring) Get(key string) (string, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (k *Keyring) Set(key, value string) error {
	err := k.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential. Removing a missing key is not an error.
func (k *Keyring) Delete(key string) error {
	err := k.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !os.IsNotExist(err) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Lookup returns the environment variable env when set, otherwise the
// keyring value under key. A missing value yields "".
func Lookup(s Store, env, key string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if s == nil {
		return ""
	}
	v, err := s.Get(key)
	if err != nil {
		return ""
	}
	return v
}
