package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/invoicer/pkg/httpx"
)

// Storage drivers selectable with INVOICER_STORAGE.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	APIURL  string        `toml:"api_url"` // Billing API base (default: http://localhost:8000/api/v1)
	Timeout time.Duration `toml:"timeout"` // Per-request timeout (default: 10s)

	Storage     string `toml:"storage"`      // Storage driver: file, sqlite, redis, memory (default: sqlite)
	StoragePath string `toml:"storage_path"` // Path of the file or sqlite store (default: <config dir>/invoicer/session.{json,db})
	RedisAddr   string `toml:"redis_addr"`   // Redis address for the redis driver (default: localhost:6379)
	RedisPrefix string `toml:"redis_prefix"` // Key prefix for the redis driver (default: invoicer:)
	MasterKey   string `toml:"master_key"`   // Optional: seals the file store at rest

	PageSize int `toml:"page_size"` // Items per page for list commands (default: 20)

	MetricsAddr string `toml:"metrics_addr"` // Optional: serve /metrics from the shell on this address
	HistoryFile string `toml:"history_file"` // Shell history (default: <config dir>/invoicer/history)

	Env                 string        `toml:"env"`                   // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        `toml:"log_level"`             // Log level (debug, info, warn, error) (default: warn)
	LogFormat           string        `toml:"log_format"`            // Log format (json, text) (default: text)
	ShutdownGracePeriod time.Duration `toml:"shutdown_grace_period"` // Graceful shutdown timeout (default: 5s)

	RateLimit httpx.RateLimitConfig `toml:"-"` // Outbound limit, from RATELIMIT_API_*
}

// DefaultConfig is the configuration with nothing set.
func DefaultConfig() Config {
	return Config{
		APIURL:              "http://localhost:8000/api/v1",
		Timeout:             10 * time.Second,
		Storage:             StorageSQLite,
		PageSize:            20,
		RedisAddr:           "localhost:6379",
		Env:                 "dev",
		LogLevel:            "warn",
		LogFormat:           "text",
		ShutdownGracePeriod: 5 * time.Second,
		RateLimit:           httpx.DefaultAPILimit,
	}
}

// LoadConfig layers, from lowest to highest precedence: defaults, the TOML
// file named by INVOICER_CONFIG, a .env file in the working directory, and
// the process environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	// godotenv never overrides variables already set, so the environment
	// keeps precedence over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if path := os.Getenv("INVOICER_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	cfg.APIURL = getEnvOrDefault("INVOICER_API_URL", cfg.APIURL)
	cfg.Timeout = getEnvDurationOrDefault("INVOICER_TIMEOUT", cfg.Timeout)
	cfg.Storage = getEnvOrDefault("INVOICER_STORAGE", cfg.Storage)
	cfg.StoragePath = getEnvOrDefault("INVOICER_STORAGE_PATH", cfg.StoragePath)
	cfg.RedisAddr = getEnvOrDefault("INVOICER_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPrefix = getEnvOrDefault("INVOICER_REDIS_PREFIX", cfg.RedisPrefix)
	cfg.MasterKey = getEnvOrDefault("INVOICER_MASTER_KEY", cfg.MasterKey)
	cfg.PageSize = getEnvIntOrDefault("INVOICER_PAGE_SIZE", cfg.PageSize)
	cfg.MetricsAddr = getEnvOrDefault("INVOICER_METRICS_ADDR", cfg.MetricsAddr)
	cfg.HistoryFile = getEnvOrDefault("INVOICER_HISTORY_FILE", cfg.HistoryFile)
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.RateLimit = httpx.ParseRateLimitFromEnv("API", cfg.RateLimit)

	cfg.resolvePaths()
	return cfg, cfg.Validate()
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageFile, StorageSQLite:
		if c.StoragePath == "" {
			return fmt.Errorf("storage %q needs a path", c.Storage)
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("storage \"redis\" needs INVOICER_REDIS_ADDR")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage)
	}

	if c.APIURL == "" {
		return errors.New("INVOICER_API_URL is empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s", c.Timeout)
	}
	return nil
}

// resolvePaths fills the on-disk locations left empty.
func (c *Config) resolvePaths() {
	if c.StoragePath != "" && c.HistoryFile != "" {
		return
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "invoicer")

	if c.StoragePath == "" {
		switch c.Storage {
		case StorageFile:
			c.StoragePath = filepath.Join(dir, "session.json")
		case StorageSQLite:
			c.StoragePath = filepath.Join(dir, "session.db")
		}
	}
	if c.HistoryFile == "" {
		c.HistoryFile = filepath.Join(dir, "history")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
