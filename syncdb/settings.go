package syncdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	keyAPIKey  = "api_key"
	keyBaseURL = "base_url"

	ledgerPrefix = "last_sync_time/"
)

// Settings stores the API credential, the cached base endpoint and the
// per-entity last-sync-time ledger in the _sync_settings table.
type Settings struct {
	db *sql.DB
}

// NewSettings returns a settings accessor over an initialized database.
func NewSettings(db *sql.DB) *Settings {
	return &Settings{db: db}
}

// APIKey returns the configured API credential, or "" when not configured.
func (s *Settings) APIKey(ctx context.Context) (string, error) {
	return s.get(ctx, keyAPIKey)
}

// SetAPIKey stores the API credential.
func (s *Settings) SetAPIKey(ctx context.Context, key string) error {
	return s.set(ctx, keyAPIKey, key)
}

// BaseURL returns the cached server base endpoint, or "" when not configured.
func (s *Settings) BaseURL(ctx context.Context) (string, error) {
	return s.get(ctx, keyBaseURL)
}

// SetBaseURL stores the server base endpoint.
func (s *Settings) SetBaseURL(ctx context.Context, url string) error {
	return s.set(ctx, keyBaseURL, url)
}

// LastSyncTime returns the recorded last-sync timestamp for an entity type,
// or "" when no incremental baseline exists.
func (s *Settings) LastSyncTime(ctx context.Context, entityType string) (string, error) {
	return s.get(ctx, ledgerPrefix+entityType)
}

// SetLastSyncTime records the last-sync timestamp for an entity type. An
// empty value clears the ledger entry, forcing the next sync to be full.
func (s *Settings) SetLastSyncTime(ctx context.Context, entityType, value string) error {
	return s.set(ctx, ledgerPrefix+entityType, value)
}

func (s *Settings) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM _sync_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

func (s *Settings) set(ctx context.Context, key, value string) error {
	if value == "" {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM _sync_settings WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to clear setting %s: %w", key, err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO _sync_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
