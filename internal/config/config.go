// Package config loads process configuration for the airos binary from
// defaults, an optional YAML file, a .env file and AIROS_* variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/PipeOpsHQ/airos/analytics"
	"github.com/PipeOpsHQ/airos/dashboard/api"
	"github.com/PipeOpsHQ/airos/fuse"
	storefactory "github.com/PipeOpsHQ/airos/storage/factory"
)

const (
	DefaultFile    = "airos.yaml"
	DefaultEnvFile = ".env"
)

type Config struct {
	Log       LogConfig           `yaml:"log"`
	Store     storefactory.Config `yaml:"store"`
	API       APIConfig           `yaml:"api"`
	Telemetry TelemetryConfig     `yaml:"telemetry"`
	FuseLimit int                 `yaml:"fuse_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type APIConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Window         int      `yaml:"window"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

func Default() Config {
	return Config{
		Log:   LogConfig{Level: "info", Format: "auto"},
		Store: storefactory.Config{}.Defaults(),
		API: APIConfig{
			Addr:           api.DefaultAddr,
			AllowedOrigins: []string{api.DefaultOrigin},
			Window:         analytics.DefaultWindow,
		},
		Telemetry: TelemetryConfig{ServiceName: "airos"},
		FuseLimit: fuse.DefaultLimit,
	}
}

// Load builds the configuration. An empty path reads AIROS_CONFIG, then
// DefaultFile if it exists. An explicit path that does not exist is an
// error.
func Load(path string) (Config, error) {
	if err := LoadEnvFile(getenv("AIROS_ENV_FILE", DefaultEnvFile)); err != nil {
		return Config{}, err
	}

	cfg := Default()
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = getenv("AIROS_CONFIG", "")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultFile
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg.normalize(), nil
}

// LoadEnvFile loads KEY=VALUE pairs without overriding variables already
// set in the environment. A missing file is ignored.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Log.Level = getenv("AIROS_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenv("AIROS_LOG_FORMAT", cfg.Log.Format)

	cfg.Store.Backend = getenv("AIROS_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.SQLitePath = getenv("AIROS_SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.Store.Redis.Addr = getenv("AIROS_REDIS_ADDR", cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = getenv("AIROS_REDIS_PASSWORD", cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = ParseIntEnv("AIROS_REDIS_DB", cfg.Store.Redis.DB)
	cfg.Store.Redis.Prefix = getenv("AIROS_REDIS_PREFIX", cfg.Store.Redis.Prefix)
	cfg.Store.Redis.TTL = ParseDurationEnv("AIROS_REDIS_TTL", cfg.Store.Redis.TTL)

	cfg.API.Addr = getenv("AIROS_API_ADDR", cfg.API.Addr)
	if origins := splitList(os.Getenv("AIROS_CORS_ORIGINS")); len(origins) > 0 {
		cfg.API.AllowedOrigins = origins
	}
	cfg.API.Window = ParseIntEnv("AIROS_RELIABILITY_WINDOW", cfg.API.Window)

	cfg.Telemetry.Enabled = ParseBoolEnv("AIROS_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.OTLPEndpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
	cfg.Telemetry.ServiceName = getenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)

	cfg.FuseLimit = ParseIntEnv("AIROS_FUSE_LIMIT", cfg.FuseLimit)
}

func (c Config) normalize() Config {
	c.Store = c.Store.Defaults()
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.FuseLimit <= 0 {
		c.FuseLimit = fuse.DefaultLimit
	}
	if strings.TrimSpace(c.API.Addr) == "" {
		c.API.Addr = api.DefaultAddr
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{api.DefaultOrigin}
	}
	if c.API.Window <= 0 {
		c.API.Window = analytics.DefaultWindow
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = "airos"
	}
	return c
}
