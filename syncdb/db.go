package syncdb

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the local database at path and prepares it for
// concurrent sync use. Use ":memory:" for tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps writers serialized and makes ":memory:" behave as
	// a single database instead of one per pooled connection.
	db.SetMaxOpenConns(1)
	if err := Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Init enables WAL mode and creates the shared sync metadata tables. Entity
// tables are created by NewStore as each store is registered.
func Init(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	tables := []string{
		// Credential and per-entity last-sync ledger, one value per key.
		`CREATE TABLE IF NOT EXISTS _sync_settings (
			key    TEXT NOT NULL PRIMARY KEY,
			value  TEXT NOT NULL
		)`,

		// Durable retry queue for failed creations.
		`CREATE TABLE IF NOT EXISTS _sync_queue (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type     TEXT NOT NULL,
			operation       TEXT NOT NULL DEFAULT 'CREATE',
			payload         TEXT NOT NULL,
			mobile_uid      TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'PENDING'
			                CHECK (status IN ('PENDING','PROCESSING','FAILED')),
			retry_count     INTEGER NOT NULL DEFAULT 0,
			max_retries     INTEGER NOT NULL DEFAULT 5,
			last_error      TEXT,
			created_at      TEXT NOT NULL,
			last_attempt_at TEXT,
			next_attempt_at TEXT
		)`,
	}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create sync table: %w", err)
		}
	}

	// Recover entries stuck in PROCESSING after a crash mid-replay.
	if _, err := db.Exec(`UPDATE _sync_queue SET status = 'PENDING' WHERE status = 'PROCESSING'`); err != nil {
		return fmt.Errorf("failed to reset in-flight queue entries: %w", err)
	}
	return nil
}
