package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteStore struct {
	*sqlStore
}

const sqliteUpsert = `
	INSERT INTO sessions (id, user_id, ip_address, user_agent, last_activity)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		ip_address = excluded.ip_address,
		user_agent = excluded.user_agent,
		last_activity = excluded.last_activity
	`

// NewSQLite creates a new SQLite session store.
// The database file is created if it doesn't exist.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}
	// A single connection serializes writers; parallel cleanup units queue
	// on the pool instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{sqlStore: newSQLStore(db, "sqlite", sqliteUpsert)}, nil
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		user_id       TEXT,
		ip_address    TEXT,
		user_agent    TEXT,
		last_activity INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS sessions_user_id_index ON sessions (user_id);
	CREATE INDEX IF NOT EXISTS sessions_last_activity_index ON sessions (last_activity);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}
