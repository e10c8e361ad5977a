// Package postgres opens the PostgreSQL pool used by the session store and
// applies its schema migrations.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const maxBackoff = 16 * time.Second

// Config contains PostgreSQL connection configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// ConnectAttempts bounds how often the first ping is retried.
	ConnectAttempts int
}

// Connect opens a pool and pings it, retrying with exponential backoff
// until the attempts run out or ctx ends.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	attempts := max(cfg.ConnectAttempts, 1)
	backoff := time.Second

	for attempt := 1; ; attempt++ {
		pool, err := open(ctx, poolConfig)
		if err == nil {
			slog.Info("connected to database", "attempts", attempt)
			return pool, nil
		}
		if attempt == attempts {
			return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, err)
		}

		slog.Warn("database not reachable, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func open(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
