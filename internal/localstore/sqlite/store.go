// Package sqlite implements the device-scoped local store over a single
// SQLite file, following the same store/migration split used for every
// persistent surface in this codebase.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hearthplan/hearthplan/internal/localstore/sqlite/migrations"
	sqlitemigrate "github.com/hearthplan/hearthplan/internal/platform/storage/sqlitemigrate"
)

// Store implements localstore.Store over SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens the local store at path and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("local store path is required")
	}

	sqlDB, err := sql.Open("sqlite", filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}

	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get returns the stored value for one purpose and identity.
func (s *Store) Get(ctx context.Context, purpose, identityID string) (string, bool, error) {
	if s == nil || s.sqlDB == nil {
		return "", false, fmt.Errorf("local store is not configured")
	}
	key, err := storageKey(purpose, identityID)
	if err != nil {
		return "", false, err
	}

	var value string
	row := s.sqlDB.QueryRowContext(ctx, "SELECT value FROM device_state WHERE key = ?", key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read local key %s: %w", purpose, err)
	}
	return value, true, nil
}

// Set upserts the value for one purpose and identity.
func (s *Store) Set(ctx context.Context, purpose, identityID, value string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("local store is not configured")
	}
	key, err := storageKey(purpose, identityID)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO device_state (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, key, value, s.clock().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("write local key %s: %w", purpose, err)
	}
	return nil
}

// Delete removes the value for one purpose and identity.
func (s *Store) Delete(ctx context.Context, purpose, identityID string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("local store is not configured")
	}
	key, err := storageKey(purpose, identityID)
	if err != nil {
		return err
	}

	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM device_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete local key %s: %w", purpose, err)
	}
	return nil
}

// storageKey builds the namespaced key. The identity segment is mandatory;
// an unscoped key would leak state across identities on a shared device.
func storageKey(purpose, identityID string) (string, error) {
	purpose = strings.TrimSpace(purpose)
	identityID = strings.TrimSpace(identityID)
	if purpose == "" {
		return "", fmt.Errorf("storage purpose is required")
	}
	if identityID == "" {
		return "", fmt.Errorf("identity id is required for local storage keys")
	}
	return purpose + "-" + identityID, nil
}
