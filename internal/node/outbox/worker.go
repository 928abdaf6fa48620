/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package outbox drains the node_signals transactional outbox and republishes each
// claimed signal to the background queue, notified in near-real-time over postgres
// LISTEN/NOTIFY and backstopped by a periodic poll.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nodecore/provisioner/internal/node/db/repo"
	"github.com/nodecore/provisioner/internal/pglistener"
)

// Channel is the postgres LISTEN/NOTIFY channel a committed EmitSignal pg_notify's.
const Channel = "node_signals_channel"

// CatchUpInterval bounds how long a missed or coalesced NOTIFY can delay delivery.
const CatchUpInterval = 30 * time.Second

// ClaimBatchSize is the maximum number of signals claimed per drain pass.
const ClaimBatchSize = 100

// Publisher is the background queue as the worker sees it; every node.Queue satisfies
// it. It is declared here because package node imports outbox.
type Publisher interface {
	Publish(ctx context.Context, recipient string, message any) error
}

// Worker drains node_signals and republishes each to Queue.
type Worker struct {
	Pool  *pgxpool.Pool
	Queue Publisher
}

// Register wires the worker's drain pass into m as both the NOTIFY handler and the
// catch-up poll for Channel.
func (w *Worker) Register(m *pglistener.Manager) {
	m.Register(Channel,
		func(ctx context.Context, _ *pgconn.Notification) error { return w.drain(ctx) },
		w.drain,
		CatchUpInterval,
	)
}

// drain claims up to ClaimBatchSize unclaimed signals and publishes each to Queue. A
// publish failure is logged, not retried here; the signal is already marked claimed,
// so recovering a lost publish is the worker's retry policy to own, not this drain
// pass's.
func (w *Worker) drain(ctx context.Context) error {
	signals, err := repo.ClaimSignals(ctx, w.Pool, ClaimBatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim signals: %w", err)
	}
	for _, s := range signals {
		recipient := fmt.Sprintf("%s:%s", s.NodeID, s.Kind)
		if err := w.Queue.Publish(ctx, recipient, s.Payload); err != nil {
			slog.Error("failed to publish signal", "signal_id", s.ID, "node_id", s.NodeID, "kind", s.Kind, "error", err)
		}
	}
	return nil
}
