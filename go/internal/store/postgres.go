package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// PostgresSchema creates the table backing the Postgres store.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS poker_kv (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresConfig holds configuration for the Postgres backend
type PostgresConfig struct {
	DSN                  string
	NotifyChannel        string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
}

// DefaultPostgresConfig returns default Postgres backend configuration
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		NotifyChannel:        "poker_kv_changes",
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
	}
}

// Postgres keeps the tree in a table and announces writes with NOTIFY in the
// same statement, so a committed write always produces a notification.
type Postgres struct {
	db  *sql.DB
	cfg PostgresConfig
}

// NewPostgres opens and pings the database. The schema is applied by the
// migrate tool.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db, cfg: cfg}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value pqtype.NullRawMessage
	err := p.db.QueryRowContext(ctx, `SELECT value FROM poker_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !value.Valid) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value.RawMessage, nil
}

func (p *Postgres) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT key, value FROM poker_kv WHERE left(key, length($1)) = $1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value pqtype.NullRawMessage
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if value.Valid {
			out[key] = value.RawMessage
		}
	}
	return out, rows.Err()
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		WITH up AS (
			INSERT INTO poker_kv (key, value, updated_at)
			VALUES ($1, $2::jsonb, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
			RETURNING key
		)
		SELECT pg_notify($3, 'put:' || key) FROM up`,
		key, pqtype.NullRawMessage{RawMessage: value, Valid: len(value) > 0}, p.cfg.NotifyChannel)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `
		WITH del AS (DELETE FROM poker_kv WHERE key = $1 RETURNING key)
		SELECT pg_notify($2, 'delete:' || key) FROM del`,
		key, p.cfg.NotifyChannel)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := p.db.ExecContext(ctx, `
		WITH del AS (DELETE FROM poker_kv WHERE left(key, length($1)) = $1 RETURNING key)
		SELECT pg_notify($2, 'delete:' || key) FROM del`,
		prefix, p.cfg.NotifyChannel)
	if err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}
	return nil
}

func (p *Postgres) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	l := pq.NewListener(
		p.cfg.DSN,
		p.cfg.MinReconnectInterval,
		p.cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(p.cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Debug().
		Str("channel", p.cfg.NotifyChannel).
		Str("prefix", prefix).
		Msg("listening for notifications")

	out := make(chan Event, watchBufferSize)
	go func() {
		defer close(out)
		defer l.Close()

		ping := time.NewTicker(p.cfg.PingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := l.Ping(); err != nil {
					log.Warn().Err(err).Msg("listener ping failed")
				}
			case n, ok := <-l.Notify:
				if !ok {
					return
				}
				ev, match := parseNotification(n, prefix)
				if !match {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// parseNotification turns a NOTIFY payload of the form "op:key" into an
// Event. A nil notification means the listener reconnected.
func parseNotification(n *pq.Notification, prefix string) (Event, bool) {
	if n == nil {
		return Event{Key: prefix, Op: OpResync}, true
	}

	op, key, found := strings.Cut(n.Extra, ":")
	if !found || !strings.HasPrefix(key, prefix) {
		return Event{}, false
	}
	switch Op(op) {
	case OpPut, OpDelete:
		return Event{Key: key, Op: Op(op)}, true
	default:
		return Event{}, false
	}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
