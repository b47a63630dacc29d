package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Backend names a KV implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendNATS     Backend = "nats"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Backend  Backend
	NATS     NATSConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// DefaultConfig returns an in-memory configuration with backend defaults
// filled in for the others.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendMemory,
		NATS:     DefaultNATSConfig(),
		Redis:    DefaultRedisConfig(),
		Postgres: DefaultPostgresConfig(),
		SQLite:   DefaultSQLiteConfig(),
	}
}

// Open connects the configured backend.
func Open(ctx context.Context, cfg Config) (KV, error) {
	var (
		kv  KV
		err error
	)

	switch cfg.Backend {
	case BackendMemory, "":
		kv = NewMemory()
	case BackendNATS:
		kv, err = NewNATS(ctx, cfg.NATS)
	case BackendRedis:
		kv, err = NewRedis(ctx, cfg.Redis)
	case BackendPostgres:
		kv, err = NewPostgres(ctx, cfg.Postgres)
	case BackendSQLite:
		kv, err = NewSQLite(ctx, cfg.SQLite)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}

	log.Info().Str("backend", string(cfg.Backend)).Msg("session store ready")
	return kv, nil
}
