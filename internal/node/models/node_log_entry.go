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

// Severity is the recognised severity level of a NodeLogEntry payload.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// NodeLogEntry is an append-only structured event in a node's log, ordered by
// Timestamp. Payload holds the recognised keys (severity, msg, error, action, event)
// plus any additional caller-supplied fields, always round-tripped through JSON so
// that reloaded entries are byte-for-byte equivalent to freshly inserted ones.
type NodeLogEntry struct {
	ID        uuid.UUID      `db:"id"`
	NodeID    uuid.UUID      `db:"node_id"`
	Payload   map[string]any `db:"payload"`
	Timestamp time.Time      `db:"timestamp"`
}

var _ dbutils.Model = (*NodeLogEntry)(nil)

func (e NodeLogEntry) TableName() string  { return "node_log_entries" }
func (e NodeLogEntry) PrimaryKey() string { return "id" }
