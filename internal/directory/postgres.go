package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const uniqueViolation = "23505"

// PostgresDirectory is the Postgres-backed Directory.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory wraps an existing pool. The pool's lifecycle is
// owned by the caller.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Migrate creates the account and contact tables if missing.
func (d *PostgresDirectory) Migrate(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			username      TEXT PRIMARY KEY,
			password_hash BYTEA NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS contacts (
			owner    TEXT NOT NULL REFERENCES users(username),
			contact  TEXT NOT NULL REFERENCES users(username),
			added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (owner, contact)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrating directory schema: %w", err)
	}
	return nil
}

func (d *PostgresDirectory) Create(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = d.pool.Exec(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)`,
		username, hash,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("creating account %s: %w", username, err)
	}
	return nil
}

func (d *PostgresDirectory) Verify(ctx context.Context, username, password string) error {
	var hash []byte
	err := d.pool.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE username = $1`,
		username,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (d *PostgresDirectory) AddContact(ctx context.Context, owner, contact string) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO contacts (owner, contact) VALUES ($1, $2)`,
		owner, contact,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return ErrAlreadyPresent
		case "23503": // foreign key violation: one of the accounts is missing
			return ErrNoSuchUser
		}
	}
	if err != nil {
		return fmt.Errorf("adding contact %s for %s: %w", contact, owner, err)
	}
	return nil
}

func (d *PostgresDirectory) Contacts(ctx context.Context, owner string) ([]string, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT contact FROM contacts WHERE owner = $1 ORDER BY added_at`,
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
