// Package database holds the PostgreSQL implementations of the report, user
// and inference log stores.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/disasterwatch/disasterwatch/internal/config"
	"github.com/disasterwatch/disasterwatch/internal/models"
	"github.com/disasterwatch/disasterwatch/internal/retry"
)

const healthCheckTimeout = 5 * time.Second

// Connect opens a pool and waits for the server to answer. Connection
// faults are retried with cfg.ConnectRetries so the service can start while
// Postgres or the Cloud SQL proxy is still coming up.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.ConnectRetries
	policy.InitialBackoff = time.Second
	policy.MaxBackoff = 10 * time.Second

	attempt := 0
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()

		err := translateError(db.PingContext(pingCtx))
		if errors.Is(err, models.ErrStoreUnavailable) {
			logger.Warn("database not reachable yet", "attempt", attempt, "error", err)
			return retry.Transient(err)
		}
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// HealthCheck runs a trivial query. A failure wraps models.ErrStoreUnavailable
// when the pool cannot reach the server.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check: %w", translateError(err))
	}
	return nil
}
