package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all necessary tables and indexes.
// Note: WAL mode is configured in db.go.
func InitSchema(db *sql.DB) error {
	if err := createQueueEntriesTable(db); err != nil {
		return err
	}
	if err := createUsersTable(db); err != nil {
		return err
	}
	return createUserContextTable(db)
}

// createQueueEntriesTable holds the per-key FIFO lists of the durable queue.
// The id column provides push order within a key.
func createQueueEntriesTable(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS queue_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			queue_key TEXT NOT NULL,
			payload BLOB NOT NULL,
			enqueued_at INTEGER NOT NULL
		)
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create queue_entries table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS idx_queue_entries_key ON queue_entries(queue_key, id)`
	if _, err := db.Exec(index); err != nil {
		return fmt.Errorf("failed to create queue_entries index: %w", err)
	}
	return nil
}

func createUsersTable(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			platform_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(namespace, platform_id)
		)
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

// createUserContextTable holds the small per-user mutable map used for
// dialog prompt state and NLU session identifiers.
func createUserContextTable(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS user_context (
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (user_id, key)
		)
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create user_context table: %w", err)
	}
	return nil
}
