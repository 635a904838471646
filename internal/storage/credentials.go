package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Credential is an authorized bridge username.
type Credential struct {
	Address  string
	Username string
}

// Credentials stores bridge usernames in SQLite.
type Credentials struct {
	db *sql.DB
}

// NewCredentials creates a credential store.
func NewCredentials(db *sql.DB) *Credentials {
	return &Credentials{db: db}
}

// Load returns the credential for address, or the most recently used one
// when address is empty. ok is false when nothing matches.
func (c *Credentials) Load(address string) (cred Credential, ok bool, err error) {
	var row *sql.Row
	if address == "" {
		row = c.db.QueryRow(`
			SELECT address, username FROM credentials
			ORDER BY last_used_at DESC, rowid DESC LIMIT 1
		`)
	} else {
		row = c.db.QueryRow(`
			SELECT address, username FROM credentials WHERE address = ?
		`, address)
	}

	err = row.Scan(&cred.Address, &cred.Username)
	if err == sql.ErrNoRows {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("failed to load credential: %w", err)
	}
	return cred, true, nil
}

// Store saves cred, replacing any username stored for the same address.
func (c *Credentials) Store(cred Credential) error {
	now := time.Now().UTC().UnixNano()

	_, err := c.db.Exec(`
		INSERT INTO credentials (address, username, created_at, last_used_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			username = excluded.username,
			last_used_at = excluded.last_used_at
	`, cred.Address, cred.Username, now, now)
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Touch marks the credential for address as used now.
func (c *Credentials) Touch(address string) error {
	_, err := c.db.Exec(`
		UPDATE credentials SET last_used_at = ? WHERE address = ?
	`, time.Now().UTC().UnixNano(), address)
	return err
}
