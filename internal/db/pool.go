package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Pool is an alias for pgxpool.Pool
type Pool = pgxpool.Pool

// NewPool creates a new PostgreSQL connection pool. An unreachable database
// is logged at startup but does not stop the service.
func NewPool(lc fx.Lifecycle, logger *zap.Logger, databaseURL string) (*pgxpool.Pool, error) {
	logger.Info("initializing database connection pool")

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to create connection pool: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("attempting to connect to database...")
			if err := pool.Ping(ctx); err != nil {
				logger.Warn("database ping failed, continuing with best-effort persistence",
					zap.Error(err), zap.String("url", MaskPassword(databaseURL)))
				return nil
			}
			logger.Info("database connection established successfully")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Close()
			logger.Info("database connection closed")
			return nil
		},
	})

	return pool, nil
}

// MaskPassword masks the password in a connection URL for logging
func MaskPassword(url string) string {
	if len(url) == 0 {
		return "<empty>"
	}
	// Simple masking - find password part between : and @
	start := 0
	for i := 0; i < len(url); i++ {
		if url[i] == ':' && i > 0 && url[i-1] != '/' {
			start = i + 1
		}
		if url[i] == '@' && start > 0 {
			return url[:start] + "***" + url[i:]
		}
	}
	return url
}
