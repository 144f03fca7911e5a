// Package directory manages user accounts and contact lists. It is
// deliberately separate from the message stores: account lookups never
// sit on the delivery hot path.
package directory

import (
	"context"
	"errors"
)

var (
	// ErrExists is returned by Create when the username is taken.
	ErrExists = errors.New("username already exists")

	// ErrNoSuchUser is returned when the named account does not exist.
	ErrNoSuchUser = errors.New("no such user")

	// ErrCredentialMismatch is returned by Verify when the password is
	// wrong.
	ErrCredentialMismatch = errors.New("credential mismatch")

	// ErrAlreadyPresent is returned by AddContact for a duplicate entry.
	ErrAlreadyPresent = errors.New("contact already present")
)

// Directory is the account and contact backend.
type Directory interface {
	// Create registers a new account. The password is stored only as a
	// hash. Returns ErrExists if the username is taken.
	Create(ctx context.Context, username, password string) error

	// Verify checks credentials. Returns ErrNoSuchUser or
	// ErrCredentialMismatch on failure, nil on success.
	Verify(ctx context.Context, username, password string) error

	// AddContact records contact in owner's contact list. Both accounts
	// must exist.
	AddContact(ctx context.Context, owner, contact string) error

	// Contacts lists owner's contacts in insertion order.
	Contacts(ctx context.Context, owner string) ([]string, error)
}
