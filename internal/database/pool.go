package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/nsmux/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// ConnectWithRetry calls Connect until it succeeds, attempts run out, or ctx
// is done. The delay doubles after each failure, capped at maxDelay.
func ConnectWithRetry(ctx context.Context, cfg config.DBConfig, attempts int, delay, maxDelay time.Duration, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		pool, err := Connect(ctx, cfg)
		if err == nil {
			logger.Info("database connected", "target", RedactedConnString(cfg), "attempt", i)
			return pool, nil
		}
		lastErr = err

		if i == attempts {
			break
		}

		logger.Warn("database connect failed, retrying",
			"target", RedactedConnString(cfg),
			"attempt", i,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect database: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay = nextDelay(delay, maxDelay)
	}

	return nil, fmt.Errorf("connect database after %d attempts: %w", attempts, lastErr)
}

func nextDelay(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if limit > 0 && next > limit {
		return limit
	}
	return next
}
