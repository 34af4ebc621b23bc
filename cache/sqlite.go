package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS quotes (
	symbol     TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
)`

// SQLite is a document backend storing one row per ticker.
type SQLite struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. The parent directory is created when missing.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: ping sqlite: %w", err)
	}
	db.SetMaxOpenConns(4)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: migrate sqlite: %w", err)
	}
	return &SQLite{db: db, nowFunc: time.Now}, nil
}

// Get returns the document for key unless its storage expiry has passed.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM quotes WHERE symbol = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.nowFunc().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get", key, err)
	}
	return data, true, nil
}

// Set upserts the document for key.
func (s *SQLite) Set(ctx context.Context, key string, doc []byte, ttl time.Duration) error {
	now := s.nowFunc()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quotes (symbol, data, expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, doc, expiresAt, now.Unix(),
	)
	if err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

// Delete removes the row for key.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quotes WHERE symbol = ?`, key); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

// Symbols lists every stored ticker, used to seed the sweeper after a
// restart.
func (s *SQLite) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM quotes ORDER BY symbol`)
	if err != nil {
		return nil, unavailable("list", "*", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, unavailable("list", "*", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// Ping checks the database handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
