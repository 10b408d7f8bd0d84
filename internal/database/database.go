package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/hadra/internal/config"
	"github.com/vedran77/hadra/internal/storage"
)

func Connect(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)

	pool, err := pgxpool.New(ctx, dsn)

	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// OpenBackend opens the storage backend selected by cfg.Driver.
func OpenBackend(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage, data is lost on exit")
		return storage.NewMemoryBackend(), nil
	case config.DriverFile:
		logger.Info("using file storage", "path", cfg.Path)
		return storage.NewFileBackend(cfg.Path)
	case config.DriverSQLite:
		backend, dbPath, err := storage.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite storage", "path", dbPath)
		return backend, nil
	case config.DriverPostgres:
		pool, err := Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		backend, err := storage.NewPostgresBackend(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("using postgres storage", "host", cfg.Postgres.Host, "db", cfg.Postgres.Name)
		return backend, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
