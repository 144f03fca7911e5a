package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// SQLiteDirectory is the SQLite-backed Directory. It shares the
// message store's database file, so accounts survive restarts the same
// way conversations do.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLiteDirectory creates the account tables on db if missing. The
// handle's lifecycle is owned by the caller.
func NewSQLiteDirectory(ctx context.Context, db *sql.DB) (*SQLiteDirectory, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		username      TEXT PRIMARY KEY,
		password_hash BLOB NOT NULL,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS contacts (
		owner    TEXT NOT NULL,
		contact  TEXT NOT NULL,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner, contact)
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("init directory schema: %w", err)
	}
	return &SQLiteDirectory{db: db}, nil
}

func (d *SQLiteDirectory) Create(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, hash,
	)
	if isConstraintErr(err) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("creating account %s: %w", username, err)
	}
	return nil
}

func (d *SQLiteDirectory) Verify(ctx context.Context, username, password string) error {
	var hash []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE username = ?`,
		username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoSuchUser
	}
	if err != nil {
		return fmt.Errorf("loading account %s: %w", username, err)
	}

	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return ErrCredentialMismatch
	}
	return nil
}

func (d *SQLiteDirectory) AddContact(ctx context.Context, owner, contact string) error {
	for _, username := range []string{owner, contact} {
		var exists bool
		err := d.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)`,
			username,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking account %s: %w", username, err)
		}
		if !exists {
			return ErrNoSuchUser
		}
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO contacts (owner, contact) VALUES (?, ?)`,
		owner, contact,
	)
	if isConstraintErr(err) {
		return ErrAlreadyPresent
	}
	if err != nil {
		return fmt.Errorf("adding contact %s for %s: %w", contact, owner, err)
	}
	return nil
}

func (d *SQLiteDirectory) Contacts(ctx context.Context, owner string) ([]string, error) {
	// rowid order is insertion order; added_at alone has second
	// resolution.
	rows, err := d.db.QueryContext(ctx,
		`SELECT contact FROM contacts WHERE owner = ? ORDER BY rowid`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("listing contacts for %s: %w", owner, err)
	}
	defer rows.Close()

	var contacts []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}
