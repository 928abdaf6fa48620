/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package node

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nodecore/provisioner/internal/config"
	internaldb "github.com/nodecore/provisioner/internal/db"
	"github.com/nodecore/provisioner/internal/node/outbox"
	"github.com/nodecore/provisioner/internal/pglistener"
)

// Queue is implemented by whatever background job queue transport is wired at startup
// (see internal/node/collaborators.go); Serve only needs it to hand to the outbox
// worker.
func Serve(cfg *config.Config, queue Queue) error {
	slog.Info("starting node identity, matching, and lifecycle core")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		slog.Info("shutdown signal received", "signal", sig)
		cancel()
	}()

	pool, err := internaldb.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		slog.Info("closing database connection")
		pool.Close()
	}()

	manager := pglistener.NewManager(pool)
	worker := &outbox.Worker{Pool: pool, Queue: queue}
	worker.Register(manager)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(gctx)
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("background worker failed: %w", err)
	}

	slog.Info("node core shutting down")
	return nil
}
