/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package nodelog implements the node log (C7): append-only structured events on a
// node, persisted through the store and mirrored to an external logger.
package nodelog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nodecore/provisioner/internal/dbutils"
	"github.com/nodecore/provisioner/internal/node/db/repo"
	"github.com/nodecore/provisioner/internal/node/models"
)

// Log implements log_append and log against the store and an external slog logger.
type Log struct {
	Repo   *repo.Repository
	Logger *slog.Logger
}

// Append records entry against nodeID: severity defaults to info, the entry is
// round-tripped through JSON so every key becomes a string, a line is written to the
// external logger tagged with the node's name, and a NodeLogEntry is persisted with
// timestamp or a store-assigned default.
func (l *Log) Append(ctx context.Context, db dbutils.Queryer, nodeID uuid.UUID, nodeName string, entry map[string]any, timestamp time.Time) (*models.NodeLogEntry, error) {
	payload, err := roundTripJSON(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to round-trip log entry through JSON: %w", err)
	}
	if _, ok := payload["severity"]; !ok {
		payload["severity"] = string(models.SeverityInfo)
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("node log entry", "node", nodeName, "entry", payload)

	return l.Repo.AppendLogEntry(ctx, db, nodeID, payload, timestamp)
}

// List returns every entry for nodeID ordered by ascending timestamp, each merged with
// an ISO8601-formatted timestamp field.
func (l *Log) List(ctx context.Context, db dbutils.Queryer, nodeID uuid.UUID) ([]map[string]any, error) {
	entries, err := l.Repo.Log(ctx, db, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries for node %s: %w", nodeID, err)
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		merged := map[string]any{}
		for k, v := range e.Payload {
			merged[k] = v
		}
		merged["timestamp"] = e.Timestamp.Format(time.RFC3339)
		out = append(out, merged)
	}
	return out, nil
}

// roundTripJSON encodes then decodes v so that every key becomes a string and every
// value is reduced to the subset of types JSON can represent, matching what a reloaded
// payload looks like.
func roundTripJSON(entry map[string]any) (map[string]any, error) {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
