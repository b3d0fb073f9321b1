// Package wallet talks to the user's wallet: listing accounts, signing the
// login challenge and sending value alongside a message.
package wallet

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// InstallURL is where users get a compatible wallet.
const InstallURL = "https://kasware.xyz/"

var (
	// ErrProviderUnavailable means no wallet is reachable.
	ErrProviderUnavailable = errors.New("no wallet found: install the KasWare wallet extension from " + InstallURL)

	// ErrUserRejected means the user declined the request in their wallet.
	ErrUserRejected = errors.New("request rejected in wallet")
)

// Provider is the capability surface of an external wallet.
type Provider interface {
	// GetAccounts returns already authorized addresses without prompting.
	GetAccounts(ctx context.Context) ([]string, error)

	// RequestAccounts prompts the user to authorize the client.
	RequestAccounts(ctx context.Context) ([]string, error)

	// SignMessage signs message with the active account.
	SignMessage(ctx context.Context, message string) (string, error)

	// SendValue transfers amount to address and returns the transaction id.
	SendValue(ctx context.Context, to string, amount decimal.Decimal) (string, error)
}

// IsAddress reports whether addr is a wallet address under one of the
// network prefixes.
func IsAddress(addr string, prefixes []string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.ContainsAny(addr, "@ \t") {
		return false
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(addr, p) && len(addr) > len(p) {
			return true
		}
	}
	return false
}

// Short abbreviates an address for display: kaspa:qz8h...3k9d.
func Short(addr string) string {
	if len(addr) <= 20 {
		return addr
	}
	return addr[:12] + "..." + addr[len(addr)-4:]
}
