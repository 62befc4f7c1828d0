// Package db opens the sqlite file that holds the session audit log.
package db

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

var (
	db      *sql.DB
	initErr error
	once    sync.Once
)

// InitDB opens the audit log at dbPath once per process and ensures the
// sessions table exists. Later calls return the same handle, or the same
// error.
func InitDB(dbPath string) (*sql.DB, error) {
	once.Do(func() {
		var err error
		db, err = sql.Open("sqlite3", dbPath)
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			return
		}

		// Write-ahead log
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			initErr = fmt.Errorf("failed to enable WAL mode: %w", err)
			return
		}

		if err := runMigrations(db); err != nil {
			initErr = fmt.Errorf("failed to run migrations: %w", err)
			return
		}
	})

	if initErr != nil {
		return nil, initErr
	}
	return db, nil
}

// runMigrations creates the sessions table and its lookup indexes.
func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		connection_id TEXT NOT NULL,
		user_name TEXT NOT NULL,
		remote_addr TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		joined_at DATETIME NOT NULL,
		left_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_joined_at ON sessions(joined_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// CloseDB closes the handle opened by InitDB.
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// ResetDB closes the handle and lets InitDB open a new one.
func ResetDB() {
	if db != nil {
		db.Close()
	}
	once = sync.Once{}
	db = nil
	initErr = nil
}

// NewTestDB returns a private in-memory audit log with the schema applied.
func NewTestDB() (*sql.DB, error) {
	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	// Each connection to :memory: is its own database
	testDB.SetMaxOpenConns(1)

	if err := runMigrations(testDB); err != nil {
		testDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return testDB, nil
}
