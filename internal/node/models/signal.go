/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nodecore/provisioner/internal/dbutils"
)

// SignalKind distinguishes the two background-queue signals the core emits as a side
// effect of a node mutation.
type SignalKind string

const (
	// SignalEvalTags requests asynchronous tag re-evaluation, emitted whenever
	// metadata is mutated outside of a checkin (checkin already evaluates tags
	// synchronously, so it never emits this signal).
	SignalEvalTags SignalKind = "eval_tags"
	// SignalPowerToggle requests the background worker ask the management channel to
	// flip a node's power state to match DesiredPowerState.
	SignalPowerToggle SignalKind = "power_toggle"
)

// Signal is a row in the transactional outbox table. A signal becomes visible to the
// background queue only after the transaction that inserted it commits, satisfying the
// "signal visible only post-commit" guarantee from the concurrency model.
type Signal struct {
	ID        uuid.UUID      `db:"id"`
	NodeID    uuid.UUID      `db:"node_id"`
	Kind      SignalKind     `db:"kind"`
	Payload   map[string]any `db:"payload"`
	CreatedAt time.Time      `db:"created_at"`
	ClaimedAt *time.Time     `db:"claimed_at"`
}

var _ dbutils.Model = (*Signal)(nil)

func (s Signal) TableName() string  { return "node_signals" }
func (s Signal) PrimaryKey() string { return "id" }
