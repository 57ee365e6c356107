package cache

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Cache backed by a SQLite database file, shared across
// processes on the same host.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the cache database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (c *SQLite) RememberForever(ctx context.Context, key string, build func() (string, error)) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM cache_entries WHERE key = ?`, key).Scan(&value)
	switch {
	case err == nil:
		return value, nil
	case err != sql.ErrNoRows:
		return "", fmt.Errorf("cache read: %w", err)
	}

	built, err := build()
	if err != nil {
		return "", err
	}

	// INSERT OR IGNORE keeps the first writer's value; the SELECT below makes
	// every racing caller observe that single stored value.
	if _, err := c.db.ExecContext(ctx, `INSERT OR IGNORE INTO cache_entries (key, value) VALUES (?, ?)`, key, built); err != nil {
		return "", fmt.Errorf("cache write: %w", err)
	}
	if err := c.db.QueryRowContext(ctx, `SELECT value FROM cache_entries WHERE key = ?`, key).Scan(&value); err != nil {
		return "", fmt.Errorf("cache read back: %w", err)
	}
	return value, nil
}

func (c *SQLite) Forget(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache forget: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *SQLite) Close() error { return c.db.Close() }
