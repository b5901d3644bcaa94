package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/invoicer/internal/storage"
	"github.com/aussiebroadwan/invoicer/internal/storage/drivers/file"
	"github.com/aussiebroadwan/invoicer/internal/storage/drivers/memory"
	"github.com/aussiebroadwan/invoicer/internal/storage/drivers/redis"
	"github.com/aussiebroadwan/invoicer/internal/storage/drivers/sqlite"
	"github.com/aussiebroadwan/invoicer/pkg/cryptox"
)

// openStorage opens the configured driver and prepares it for use.
func openStorage(ctx context.Context, cfg Config, logger *slog.Logger) (storage.KV, error) {
	logger = logger.With("component", "storage", "driver", cfg.Storage)

	switch cfg.Storage {
	case StorageMemory:
		return memory.NewStore(), nil

	case StorageFile:
		opts := file.Options{Logger: logger}
		if cfg.MasterKey != "" {
			sealer, err := cryptox.NewSealer([]byte(cfg.MasterKey), nil)
			if err != nil {
				return nil, fmt.Errorf("failed to initialize sealer: %w", err)
			}
			opts.Sealer = sealer
		}
		store, err := file.NewStore(cfg.StoragePath, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open file storage: %w", err)
		}
		logger.Debug("storage opened", "path", cfg.StoragePath, "sealed", opts.Sealer != nil)
		return store, nil

	case StorageSQLite:
		return openSQLite(cfg.StoragePath, logger)

	case StorageRedis:
		store, err := redis.Dial(ctx, cfg.RedisAddr, cfg.RedisPrefix, logger)
		if err != nil {
			return nil, err
		}
		logger.Debug("storage opened", "addr", cfg.RedisAddr)
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage)
}

// openSQLite opens the database and applies migrations.
func openSQLite(path string, logger *slog.Logger) (storage.KV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	logger.Debug("database migrations applied", "path", path)
	return db, nil
}
