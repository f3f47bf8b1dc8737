package chat

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteBackend implements Backend with a single key-value table in a SQLite
// database file. This is the default on-device backend.
type SQLiteBackend struct {
	dsn string
	db  *sql.DB
}

func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{dsn: path}
}

func (sb *SQLiteBackend) Open(ctx context.Context) error {
	if dir := filepath.Dir(sb.dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", sb.dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Single local client; one connection avoids SQLITE_BUSY on concurrent writes
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	sb.db = db
	return nil
}

func (sb *SQLiteBackend) Get(ctx context.Context, key string) (string, bool, error) {
	row := sb.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to query key %q: %w", key, err)
	}
	return value, true, nil
}

func (sb *SQLiteBackend) Set(ctx context.Context, key, value string) error {
	query := `INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := sb.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to store key %q: %w", key, err)
	}
	return nil
}

func (sb *SQLiteBackend) Close() error {
	if sb.db == nil {
		return nil
	}
	return sb.db.Close()
}
