// Package factory builds a storage.Store from configuration.
package factory

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PipeOpsHQ/airos/storage"
	"github.com/PipeOpsHQ/airos/storage/hybrid"
	"github.com/PipeOpsHQ/airos/storage/memory"
	redisstore "github.com/PipeOpsHQ/airos/storage/redis"
	sqlitestore "github.com/PipeOpsHQ/airos/storage/sqlite"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendHybrid = "hybrid"
	BackendMemory = "memory"

	DefaultSQLitePath = "./.air_os/traces.db"
	DefaultRedisAddr  = "127.0.0.1:6379"
)

type Config struct {
	Backend    string      `yaml:"backend"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// Defaults fills unset fields.
func (c Config) Defaults() Config {
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = BackendSQLite
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if strings.TrimSpace(c.SQLitePath) == "" {
		c.SQLitePath = DefaultSQLitePath
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	return c
}

func New(ctx context.Context, cfg Config) (storage.Store, error) {
	_ = ctx
	cfg = cfg.Defaults()

	switch cfg.Backend {
	case BackendSQLite:
		return sqlitestore.New(cfg.SQLitePath)

	case BackendRedis:
		return newRedisStore(cfg.Redis)

	case BackendHybrid:
		durable, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		cache, err := newRedisStore(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis cache unavailable, using sqlite only")
			return hybrid.New(durable, nil)
		}
		return hybrid.New(durable, cache)

	case BackendMemory:
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unsupported store backend %q (use sqlite, redis, hybrid, or memory)", cfg.Backend)
	}
}

func FromEnv(ctx context.Context) (storage.Store, error) {
	return New(ctx, ConfigFromEnv())
}

// ConfigFromEnv reads AIROS_STORE_BACKEND, AIROS_SQLITE_PATH and the
// AIROS_REDIS_* variables.
func ConfigFromEnv() Config {
	return Config{
		Backend:    getenv("AIROS_STORE_BACKEND", BackendSQLite),
		SQLitePath: getenv("AIROS_SQLITE_PATH", DefaultSQLitePath),
		Redis: RedisConfig{
			Addr:     getenv("AIROS_REDIS_ADDR", DefaultRedisAddr),
			Password: strings.TrimSpace(os.Getenv("AIROS_REDIS_PASSWORD")),
			DB:       getenvInt("AIROS_REDIS_DB", 0),
			Prefix:   getenv("AIROS_REDIS_PREFIX", ""),
			TTL:      getenvDuration("AIROS_REDIS_TTL", 0),
		},
	}
}

func newRedisStore(cfg RedisConfig) (storage.Store, error) {
	opts := []redisstore.Option{
		redisstore.WithPassword(cfg.Password),
		redisstore.WithDB(cfg.DB),
		redisstore.WithTTL(cfg.TTL),
		redisstore.WithPrefix(cfg.Prefix),
	}
	return redisstore.New(cfg.Addr, opts...)
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
