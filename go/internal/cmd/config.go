package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/planningpoker/go/internal/dbconfig"
	"github.com/mcdev12/planningpoker/go/internal/janitor"
	"github.com/mcdev12/planningpoker/go/internal/poker"
	"github.com/mcdev12/planningpoker/go/internal/store"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Poker struct {
		Scale               []int `yaml:"scale"`
		OutlierThreshold    *int  `yaml:"outlier_threshold"`
		DefaultCountdownSec int   `yaml:"default_countdown_sec"`
		Exclusion           struct {
			Names    []string `yaml:"names"`
			Patterns []string `yaml:"patterns"`
		} `yaml:"exclusion"`
	} `yaml:"poker"`
	Cleanup janitor.Config `yaml:"cleanup"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the YAML config. A missing file yields the defaults.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("config file not found, using defaults")
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// policy builds the voting rules from the poker section
func (c *Config) policy() (poker.Policy, error) {
	p := poker.DefaultPolicy()

	if len(c.Poker.Scale) > 0 {
		p.Scale = poker.Scale(c.Poker.Scale)
	}
	if c.Poker.OutlierThreshold != nil {
		p.OutlierThreshold = *c.Poker.OutlierThreshold
	}

	exclusion := c.Poker.Exclusion
	if len(exclusion.Names) > 0 || len(exclusion.Patterns) > 0 {
		deny, err := poker.NewDenyList(exclusion.Names, exclusion.Patterns)
		if err != nil {
			return poker.Policy{}, err
		}
		p.Exclusion = deny
	}

	return p, nil
}

func (c *Config) defaultCountdown() int {
	if c.Poker.DefaultCountdownSec > 0 {
		return c.Poker.DefaultCountdownSec
	}
	return 5
}

// storeConfigFromEnv selects the session store backend
func storeConfigFromEnv() store.Config {
	cfg := store.DefaultConfig()
	cfg.Backend = store.Backend(getEnv("STORE_BACKEND", string(store.BackendMemory)))

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Bucket = getEnv("NATS_BUCKET", cfg.NATS.Bucket)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Key = getEnv("REDIS_KEY", cfg.Redis.Key)

	cfg.SQLite.Path = getEnv("SQLITE_PATH", cfg.SQLite.Path)

	cfg.Postgres.DSN = dbconfig.NewConfigFromEnv().DSN()
	cfg.Postgres.NotifyChannel = getEnv("DB_NOTIFY_CHANNEL", cfg.Postgres.NotifyChannel)
	if secs := getEnvAsInt("DB_PING_INTERVAL_SEC", 0); secs > 0 {
		cfg.Postgres.PingInterval = time.Duration(secs) * time.Second
	}

	return cfg
}
