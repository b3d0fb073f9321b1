package session

import "errors"

var (
	// ErrNoIdentity gates every data operation while no one is logged in.
	ErrNoIdentity = errors.New("not connected: connect a wallet or log in")

	// ErrNotFound means no account has the given id.
	ErrNotFound = errors.New("account not found")

	// ErrInvalidCredentials means the password did not match.
	ErrInvalidCredentials = errors.New("incorrect password")

	// ErrAlreadyExists means the account id is taken.
	ErrAlreadyExists = errors.New("account id is already taken")

	// ErrNoAccount is returned by account-only operations on a wallet-only
	// session.
	ErrNoAccount = errors.New("log in with an account to manage trusted addresses")

	// ErrTooManyAddresses caps the trusted address list.
	ErrTooManyAddresses = errors.New("an account can trust at most two extra addresses")
)
