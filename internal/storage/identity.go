package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// IdentityBacking persists the identity record in SQLite. It satisfies the
// identity package's Backing and Refresher interfaces.
type IdentityBacking struct {
	db          *sql.DB
	logger      *slog.Logger
	dataVersion int64
}

// Identity returns a backing over the identity table. A nil logger uses
// slog.Default.
func (s *Store) Identity(logger *slog.Logger) *IdentityBacking {
	if logger == nil {
		logger = slog.Default()
	}
	b := &IdentityBacking{db: s.db, logger: logger}
	b.dataVersion, _ = b.currentDataVersion()
	return b
}

func (b *IdentityBacking) Load() (string, bool) {
	var value string
	err := b.db.QueryRow(`SELECT value FROM identity WHERE key = ?`, identityKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		b.logger.Warn("could not read identity record, using default", "error", err)
		return "", false
	}
	b.observe()
	if value == "" {
		return "", false
	}
	return value, true
}

// Store upserts the record and appends a history row in one transaction.
func (b *IdentityBacking) Store(value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO identity (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		identityKey, value, now,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("writing identity: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO identity_history (id, value, created_at) VALUES (?, ?, ?)`,
		uuid.New().String(), value, now,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("recording identity history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing identity: %w", err)
	}
	b.observe()
	return nil
}

// Changed reports whether another connection committed since the last
// Load or Store through this backing.
func (b *IdentityBacking) Changed() bool {
	v, err := b.currentDataVersion()
	if err != nil {
		return false
	}
	return v != b.dataVersion
}

// History returns up to limit identity changes, newest first.
func (b *IdentityBacking) History(limit int) ([]IdentityChange, error) {
	rows, err := b.db.Query(`
		SELECT id, value, created_at FROM identity_history
		ORDER BY seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IdentityChange
	for rows.Next() {
		var c IdentityChange
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Value, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		c.CreatedAt = t
		results = append(results, c)
	}
	return results, rows.Err()
}

func (b *IdentityBacking) observe() {
	if v, err := b.currentDataVersion(); err == nil {
		b.dataVersion = v
	}
}

// currentDataVersion reads PRAGMA data_version, which changes when another
// connection commits to the database file.
func (b *IdentityBacking) currentDataVersion() (int64, error) {
	var v int64
	if err := b.db.QueryRow(`PRAGMA data_version`).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}
