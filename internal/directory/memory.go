package directory

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MemoryDirectory is the in-memory Directory backend, used when the
// relay runs without a database and in tests.
type MemoryDirectory struct {
	mu       sync.Mutex
	accounts map[string][]byte
	contacts map[string][]string
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		accounts: make(map[string][]byte),
		contacts: make(map[string][]string),
	}
}

func (d *MemoryDirectory) Create(_ context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[username]; ok {
		return ErrExists
	}
	d.accounts[username] = hash
	return nil
}

func (d *MemoryDirectory) Verify(_ context.Context, username, password string) error {
	d.mu.Lock()
	hash, ok := d.accounts[username]
	d.mu.Unlock()

	if !ok {
		return ErrNoSuchUser
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return ErrCredentialMismatch
	}
	return nil
}

func (d *MemoryDirectory) AddContact(_ context.Context, owner, contact string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.accounts[owner]; !ok {
		return ErrNoSuchUser
	}
	if _, ok := d.accounts[contact]; !ok {
		return ErrNoSuchUser
	}
	for _, c := range d.contacts[owner] {
		if c == contact {
			return ErrAlreadyPresent
		}
	}
	d.contacts[owner] = append(d.contacts[owner], contact)
	return nil
}

func (d *MemoryDirectory) Contacts(_ context.Context, owner string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.contacts[owner]...), nil
}
