// Package config loads the cacheaside CLI settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all CLI configuration loaded from environment variables.
type Config struct {
	Redis  RedisConfig
	Source SourceConfig
	Cache  CacheConfig
	Log    LogConfig
}

// RedisConfig points at the shared cache store.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// SourceConfig describes the authoritative SQL table.
type SourceConfig struct {
	Driver   string `envconfig:"SOURCE_DRIVER" default:"sqlite"` // sqlite, mysql or pgx
	DSN      string `envconfig:"SOURCE_DSN" default:"file:cacheaside.db"`
	Table    string `envconfig:"SOURCE_TABLE" default:"tb_shop"`
	IDColumn string `envconfig:"SOURCE_ID_COLUMN" default:"id"`
}

// CacheConfig holds key layout and TTL settings.
type CacheConfig struct {
	Prefix         string        `envconfig:"CACHE_PREFIX" default:"cache:shop:"`
	TTL            time.Duration `envconfig:"CACHE_TTL" default:"30m"`
	NullTTL        time.Duration `envconfig:"CACHE_NULL_TTL" default:"2m"`
	LockPrefix     string        `envconfig:"LOCK_PREFIX" default:"lock:"`
	LockTTL        time.Duration `envconfig:"LOCK_TTL" default:"10s"`
	RebuildWorkers int           `envconfig:"REBUILD_WORKERS" default:"10"`
}

// LogConfig selects the zap logger flavor.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	Debug bool   `envconfig:"LOG_DEBUG" default:"false"` // development encoder
}

var drivers = map[string]bool{"sqlite": true, "mysql": true, "pgx": true}

// Load reads configuration from environment variables. Named env files are
// loaded first and must exist; with none, a ./.env is used if present.
// Variables already set in the environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load() // optional .env
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the client would silently replace or misuse.
func (c *Config) Validate() error {
	var errs []error
	if !drivers[c.Source.Driver] {
		errs = append(errs, fmt.Errorf("SOURCE_DRIVER %q: want sqlite, mysql or pgx", c.Source.Driver))
	}
	if c.Source.Table == "" || c.Source.IDColumn == "" {
		errs = append(errs, errors.New("SOURCE_TABLE and SOURCE_ID_COLUMN are required"))
	}
	if c.Cache.TTL <= 0 || c.Cache.NullTTL <= 0 || c.Cache.LockTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL, CACHE_NULL_TTL and LOCK_TTL must be positive"))
	}
	if c.Cache.RebuildWorkers <= 0 {
		errs = append(errs, errors.New("REBUILD_WORKERS must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
