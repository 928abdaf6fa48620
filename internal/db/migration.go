/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package db

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"

	"github.com/nodecore/provisioner/internal/config"
)

// MigrationsTable is the table golang-migrate uses to track applied versions.
const MigrationsTable = "schema_migrations"

// MigrationHandler wraps a migrate.Migrate instance and doubles as its logger.
type MigrationHandler struct {
	Migrate *migrate.Migrate
}

// Printf implements migrate's logger interface.
func (h *MigrationHandler) Printf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Verbose implements migrate's logger interface.
func (h *MigrationHandler) Verbose() bool {
	return true
}

// NewMigrationHandler builds a MigrationHandler from a parsed source over cfg's database.
func NewMigrationHandler(cfg config.DatabaseConfig, sourceDriver source.Driver) (*MigrationHandler, error) {
	connStr := fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=disable&connect_timeout=10&x-migrations-table=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, MigrationsTable)

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	h := &MigrationHandler{Migrate: m}
	m.Log = h
	return h, nil
}

// StartMigration runs every pending up migration from sourceDriver against cfg's
// database, stopping gracefully on SIGINT/SIGTERM.
func StartMigration(cfg config.DatabaseConfig, sourceDriver source.Driver) error {
	h, err := NewMigrationHandler(cfg, sourceDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrations handler: %w", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		slog.Info("received shutdown signal, stopping migration gracefully")
		h.Migrate.GracefulStop <- true
	}()

	defer func(start time.Time) {
		slog.Debug(fmt.Sprintf("migration up took %s", time.Since(start)))
	}(time.Now())

	if err := h.Migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("migrations completed successfully")
	return nil
}
