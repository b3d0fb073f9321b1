package model

import "time"

// MaxTrustedAddresses caps the extra addresses an account may list.
const MaxTrustedAddresses = 2

// Account is a username/password login bound to a primary wallet address.
type Account struct {
	ID               string    `json:"id,omitempty"`
	AccountID        string    `json:"account_id"`
	PasswordHash     string    `json:"password_hash,omitempty"`
	PrimaryAddress   string    `json:"primary_address"`
	TrustedAddresses []string  `json:"trusted_addresses,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Public returns a copy without the password hash, suitable for local
// persistence.
func (a Account) Public() Account {
	a.PasswordHash = ""
	a.TrustedAddresses = append([]string(nil), a.TrustedAddresses...)
	return a
}

// Contact is an address book entry owned by one identity.
type Contact struct {
	ID            string    `json:"id,omitempty"`
	OwnerAddress  string    `json:"owner_address"`
	DisplayName   string    `json:"display_name"`
	TargetAddress string    `json:"target_address"`
	CreatedAt     time.Time `json:"created_at"`
}

// DefaultLabelColor is used when a label is created without a color.
const DefaultLabelColor = "#00d9ff"

// Label is a named, colored tag owned by one identity.
type Label struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name"`
	Color        string    `json:"color"`
	OwnerAddress string    `json:"owner_address"`
	CreatedAt    time.Time `json:"created_at"`
}
