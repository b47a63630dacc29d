package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS poker_kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteConfig holds configuration for the SQLite backend
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	Path string
}

// DefaultSQLiteConfig returns default SQLite configuration
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{Path: "poker.db"}
}

// SQLite persists the tree in a single file. Change notifications are
// in-process only, so every client must go through the same server.
type SQLite struct {
	db      *sql.DB
	watches *watchHub
}

// NewSQLite opens the database file and creates the table if needed.
func NewSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLite, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Debug().Str("path", cfg.Path).Msg("sqlite store opened")
	return &SQLite{db: db, watches: newWatchHub()}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM poker_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM poker_kv WHERE substr(key, 1, length(?1)) = ?1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poker_kv (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	s.watches.notify(Event{Key: key, Op: OpPut})
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM poker_kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.watches.notify(Event{Key: key, Op: OpDelete})
	}
	return nil
}

func (s *SQLite) DeletePrefix(ctx context.Context, prefix string) error {
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM poker_kv WHERE substr(key, 1, length(?1)) = ?1 RETURNING key`, prefix)
	if err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}

	var removed []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return fmt.Errorf("scan row: %w", err)
		}
		removed = append(removed, key)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}

	for _, key := range removed {
		s.watches.notify(Event{Key: key, Op: OpDelete})
	}
	return nil
}

func (s *SQLite) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	return s.watches.subscribe(ctx, prefix), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
