/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package repo implements the node store (C2): persistence of nodes, their log
// entries, and the transactional outbox signals emitted alongside node mutations.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"

	"github.com/nodecore/provisioner/internal/dbutils"
	"github.com/nodecore/provisioner/internal/node/models"
)

// Repository is the node store: persistence of nodes, their log entries, and outbox
// signals. Db is a *pgxpool.Pool for top-level calls; individual methods accept any
// dbutils.Queryer (a pool or an open pgx.Tx) so callers can compose several of them
// inside a single transaction, as the identity resolver and checkin processor do.
type Repository struct {
	Db *pgxpool.Pool
}

// Overlap returns every node whose hw_info shares at least one entry with hwMatch. An
// empty slice, never nil, is returned when nothing overlaps.
func (r *Repository) Overlap(ctx context.Context, db dbutils.Queryer, hwMatch []string) ([]models.Node, error) {
	if len(hwMatch) == 0 {
		return []models.Node{}, nil
	}

	var n models.Node
	tags := dbutils.GetAllDBTagsFromStruct(n)

	columns := make([]string, 0, len(tags))
	for _, c := range tags.Columns() {
		columns = append(columns, c.(string))
	}

	sql, args, err := psql.RawQuery(fmt.Sprintf(
		"SELECT %s FROM %s WHERE hw_info && ?",
		strings.Join(columns, ", "), n.TableName(),
	), psql.Arg(hwMatch)).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build overlap query: %w", err)
	}

	slog.Debug("executing overlap query", "sql", sql, "hw_match", hwMatch)

	rows, _ := db.Query(ctx, sql, args...)
	records, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[models.Node])
	if err != nil {
		return nil, fmt.Errorf("failed to execute overlap query: %w", err)
	}
	return records, nil
}

// Search returns every node whose hostname matches hostnamePattern (a postgres regex,
// case-insensitive, via "~*") and whose hw_info contains every entry in hwInfoFilters.
// An empty slice, never nil, is returned when nothing matches.
func (r *Repository) Search(ctx context.Context, db dbutils.Queryer, hostnamePattern string, hwInfoFilters []string) ([]models.Node, error) {
	var n models.Node
	tags := dbutils.GetAllDBTagsFromStruct(n)
	columns := make([]string, 0, len(tags))
	for _, c := range tags.Columns() {
		columns = append(columns, c.(string))
	}

	clauses := []string{"hostname ~* ?"}
	args := []any{hostnamePattern}
	if len(hwInfoFilters) > 0 {
		clauses = append(clauses, "hw_info @> ?")
		args = append(args, hwInfoFilters)
	}

	sql, buildArgs, err := psql.RawQuery(fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s",
		strings.Join(columns, ", "), n.TableName(), strings.Join(clauses, " AND "),
	), psql.Arg(args...)).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}

	rows, _ := db.Query(ctx, sql, buildArgs...)
	records, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[models.Node])
	if err != nil {
		return nil, fmt.Errorf("failed to execute search query: %w", err)
	}
	return records, nil
}

// LockNode selects a node row FOR UPDATE so that concurrent checkins against the same
// node serialize pessimistically. Must be called within a transaction.
func (r *Repository) LockNode(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Node, error) {
	var n models.Node
	tags := dbutils.GetAllDBTagsFromStruct(n)

	sql, args, err := psql.Select(
		sm.Columns(tags.Columns()...),
		sm.From(n.TableName()),
		sm.Where(psql.Quote(n.PrimaryKey()).EQ(psql.Arg(id))),
		sm.ForUpdate(n.TableName()),
	).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build lock query: %w", err)
	}

	rows, _ := tx.Query(ctx, sql, args...)
	record, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[models.Node])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dbutils.ErrNotFound
		}
		return nil, fmt.Errorf("failed to execute lock query: %w", err)
	}
	return &record, nil
}

// Get retrieves a node by id.
func (r *Repository) Get(ctx context.Context, db dbutils.Queryer, id uuid.UUID) (*models.Node, error) {
	return dbutils.Find[models.Node](ctx, db, id)
}

// Create persists a new node; the database trigger/default assigns id and name.
func (r *Repository) Create(ctx context.Context, db dbutils.Queryer, hwInfo []string, dhcpMac *string) (*models.Node, error) {
	n := models.Node{
		HwInfo:              hwInfo,
		DHCPMac:             dhcpMac,
		Facts:               map[string]any{},
		Metadata:            map[string]any{},
		DesiredPowerState:   models.PowerStateUnknown,
		LastKnownPowerState: models.PowerStateUnknown,
	}
	return dbutils.Create[models.Node](ctx, db, n)
}

// Save persists every column of node.
func (r *Repository) Save(ctx context.Context, db dbutils.Queryer, node *models.Node) (*models.Node, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}
	return dbutils.Update[models.Node](ctx, db, node.ID, *node)
}

// Destroy removes a node. Callers performing the fact/firmware merge must first
// reassign its log entries with ReassignLogEntries.
func (r *Repository) Destroy(ctx context.Context, db dbutils.Queryer, id uuid.UUID) error {
	_, err := dbutils.Delete[models.Node](ctx, db, id)
	return err
}

// AppendLogEntry inserts a NodeLogEntry. timestamp defaults to now if zero.
func (r *Repository) AppendLogEntry(ctx context.Context, db dbutils.Queryer, nodeID uuid.UUID, payload map[string]any, timestamp time.Time) (*models.NodeLogEntry, error) {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	entry := models.NodeLogEntry{
		NodeID:    nodeID,
		Payload:   payload,
		Timestamp: timestamp,
	}
	return dbutils.Create[models.NodeLogEntry](ctx, db, entry)
}

// Log returns every entry for a node ordered by ascending timestamp.
func (r *Repository) Log(ctx context.Context, db dbutils.Queryer, nodeID uuid.UUID) ([]models.NodeLogEntry, error) {
	var e models.NodeLogEntry
	tags := dbutils.GetAllDBTagsFromStruct(e)

	sql, args, err := psql.Select(
		sm.Columns(tags.Columns()...),
		sm.From(e.TableName()),
		sm.Where(psql.Quote("node_id").EQ(psql.Arg(nodeID))),
		sm.OrderBy("timestamp").Asc(),
	).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build log query: %w", err)
	}

	rows, _ := db.Query(ctx, sql, args...)
	records, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[models.NodeLogEntry])
	if err != nil {
		return nil, fmt.Errorf("failed to execute log query: %w", err)
	}
	return records, nil
}

// ReassignLogEntries moves every log entry from one node to another, preserving
// timestamps. Used by the fact/firmware merge to carry the firmware-only node's
// history onto the surviving fact-bearing node.
func (r *Repository) ReassignLogEntries(ctx context.Context, db dbutils.Queryer, fromNodeID, toNodeID uuid.UUID) error {
	sql, args, err := psql.Update(
		um.Table(models.NodeLogEntry{}.TableName()),
		um.SetCol("node_id").ToArg(toNodeID),
		um.Where(psql.Quote("node_id").EQ(psql.Arg(fromNodeID))),
	).Build()
	if err != nil {
		return fmt.Errorf("failed to build reassign-log-entries expression: %w", err)
	}
	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to reassign log entries: %w", err)
	}
	return nil
}

// EmitSignal inserts an outbox row. It only becomes visible to the background queue
// once the enclosing transaction commits.
func (r *Repository) EmitSignal(ctx context.Context, db dbutils.Queryer, nodeID uuid.UUID, kind models.SignalKind, payload map[string]any) error {
	signal := models.Signal{
		NodeID:    nodeID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	_, err := dbutils.Create[models.Signal](ctx, db, signal)
	return err
}

// ClaimSignals locks and returns up to limit unclaimed signals, skipping rows already
// locked by a concurrent claimer, and marks them claimed within the same transaction.
// Intended to be called by the background outbox worker.
func ClaimSignals(ctx context.Context, pool *pgxpool.Pool, limit int) ([]models.Signal, error) {
	var claimed []models.Signal
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var s models.Signal
		tags := dbutils.GetAllDBTagsFromStruct(s)
		columns := make([]string, 0, len(tags))
		for _, c := range tags.Columns() {
			columns = append(columns, c.(string))
		}

		sql, args, err := psql.RawQuery(fmt.Sprintf(
			"SELECT %s FROM %s WHERE claimed_at IS NULL ORDER BY created_at ASC LIMIT %d FOR UPDATE SKIP LOCKED",
			strings.Join(columns, ", "), s.TableName(), limit,
		)).Build()
		if err != nil {
			return fmt.Errorf("failed to build claim-signals query: %w", err)
		}

		rows, _ := tx.Query(ctx, sql, args...)
		claimed, err = pgx.CollectRows(rows, pgx.RowToStructByNameLax[models.Signal])
		if err != nil {
			return fmt.Errorf("failed to execute claim-signals query: %w", err)
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(claimed))
		for _, c := range claimed {
			ids = append(ids, c.ID)
		}
		updateSQL, updateArgs, err := psql.Update(
			um.Table(s.TableName()),
			um.SetCol("claimed_at").ToArg(time.Now().UTC()),
			um.Where(psql.Quote("id").In(psql.Arg(toAny(ids)...))),
		).Build()
		if err != nil {
			return fmt.Errorf("failed to build mark-claimed expression: %w", err)
		}
		if _, err := tx.Exec(ctx, updateSQL, updateArgs...); err != nil {
			return fmt.Errorf("failed to mark signals claimed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed transaction to claim signals: %w", err)
	}
	return claimed, nil
}

func toAny(ids []uuid.UUID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
