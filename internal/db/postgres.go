/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package db wires up the postgres connection pool shared by the node store and the
// background outbox worker.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/nodecore/provisioner/internal/config"
)

// NewPgxPool creates a concurrency-safe connection pool configured from cfg.
func NewPgxPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   queryLogger,
		LogLevel: tracelog.LogLevelDebug,
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.MaxConnLifetimeJitter = 10 * time.Millisecond
	poolConfig.ConnConfig.ConnectTimeout = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("database connection pool established", "host", cfg.Host, "database", cfg.Database)
	return pool, nil
}

var queryLogger = tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	attrs := make([]any, 0, len(data)*2+2)
	attrs = append(attrs, "event", msg)
	for k, v := range data {
		attrs = append(attrs, k, v)
	}
	switch level {
	case tracelog.LogLevelError:
		slog.Error("pgx", attrs...)
	case tracelog.LogLevelWarn:
		slog.Warn("pgx", attrs...)
	default:
		slog.Debug("pgx", attrs...)
	}
})
