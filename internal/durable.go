package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DurableTier is persistent key-value storage for serialized ledgers
type DurableTier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// SessionKVSchema creates the table backing the durable tier
const SessionKVSchema = `
CREATE TABLE IF NOT EXISTS session_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// OpenDatabase opens (creating if needed) the SQLite file behind the durable tier
func OpenDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec(SessionKVSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session_kv table: %w", err)
	}

	return db, nil
}

// SQLiteDurable stores ledgers in the session_kv table
type SQLiteDurable struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteDurable creates a durable tier over an open database
func NewSQLiteDurable(db *sql.DB) *SQLiteDurable {
	return &SQLiteDurable{db: db, now: time.Now}
}

// Get returns the value stored at key
func (d *SQLiteDurable) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value sql.NullString
	err := d.db.QueryRowContext(ctx, "SELECT value FROM session_kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &TierError{Tier: "durable", Key: key, Op: "read", Err: err}
	}
	if !value.Valid {
		return nil, false, nil
	}
	return []byte(value.String), true, nil
}

// Put upserts value at key
func (d *SQLiteDurable) Put(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := d.db.ExecContext(ctx, query, key, string(value), d.now().UnixMilli()); err != nil {
		return &TierError{Tier: "durable", Key: key, Op: "write", Err: err}
	}
	return nil
}

// Delete removes key
func (d *SQLiteDurable) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM session_kv WHERE key = ?", key); err != nil {
		return &TierError{Tier: "durable", Key: key, Op: "clear", Err: err}
	}
	return nil
}

// DeletePrefix removes every key starting with prefix. LIKE is avoided so
// '%' and '_' in session ids are matched literally.
func (d *SQLiteDurable) DeletePrefix(ctx context.Context, prefix string) error {
	query := "DELETE FROM session_kv WHERE substr(key, 1, length(?)) = ?"
	if _, err := d.db.ExecContext(ctx, query, prefix, prefix); err != nil {
		return &TierError{Tier: "durable", Key: prefix + "*", Op: "clear", Err: err}
	}
	return nil
}

// Keys lists keys starting with prefix in lexical order
func (d *SQLiteDurable) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := "SELECT key FROM session_kv WHERE substr(key, 1, length(?)) = ? ORDER BY key"
	rows, err := d.db.QueryContext(ctx, query, prefix, prefix)
	if err != nil {
		return nil, &TierError{Tier: "durable", Key: prefix + "*", Op: "read", Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return keys, nil
}
