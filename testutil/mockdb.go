package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// sessionKVSchema matches the durable tier's table
const sessionKVSchema = `
	CREATE TABLE IF NOT EXISTS session_kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`

// CreateInMemoryDB creates an in-memory SQLite database for testing
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sessionKVSchema); err != nil {
		db.Close()
		t.Fatalf("Failed to create session_kv table: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// InsertRaw stores a value under key without going through the store, for
// seeding legacy or corrupt rows
func InsertRaw(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec(`INSERT OR REPLACE INTO session_kv (key, value, updated_at) VALUES (?, ?, 0)`, key, value); err != nil {
		t.Fatalf("Failed to insert %s: %v", key, err)
	}
}

// CountKeys returns how many rows exist under prefix
func CountKeys(t *testing.T, db *sql.DB, prefix string) int {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM session_kv WHERE substr(key, 1, length(?)) = ?`, prefix, prefix).Scan(&n)
	if err != nil {
		t.Fatalf("Failed to count keys: %v", err)
	}
	return n
}
