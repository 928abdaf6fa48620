/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package dbutils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
)

// ErrNotFound is returned by any repository function when no record matches the
// requested criteria.
var ErrNotFound = errors.New("record not found")

// Queryer is satisfied by *pgxpool.Pool, pgx.Tx, and pgxmock.PgxPoolIface, which lets
// the helpers below run either outside or inside a transaction.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Find retrieves a specific tuple by primary key. ErrNotFound is returned if no record
// matches.
func Find[T Model](ctx context.Context, db Queryer, id any) (*T, error) {
	var record T
	tags := GetAllDBTagsFromStruct(record)

	sql, args, err := psql.Select(
		sm.Columns(tags.Columns()...),
		sm.From(record.TableName()),
		sm.Where(psql.Quote(record.PrimaryKey()).EQ(psql.Arg(id))),
	).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	slog.Debug("executing statement", "sql", sql, "args", args)

	rows, _ := db.Query(ctx, sql, args...)
	record, err = pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &record, nil
}

// Search retrieves every tuple matching the given expression. If expression is nil all
// rows are returned. An empty slice, never nil, is returned when nothing matches.
func Search[T Model](ctx context.Context, db Queryer, expression bob.Expression) ([]T, error) {
	var record T
	tags := GetAllDBTagsFromStruct(record)

	mods := []bob.Mod[*dialect.SelectQuery]{
		sm.Columns(tags.Columns()...),
		sm.From(record.TableName()),
	}
	if expression != nil {
		mods = append(mods, sm.Where(expression))
	}

	sql, args, err := psql.Select(mods...).Build()
	if err != nil {
		return []T{}, fmt.Errorf("failed to build query: %w", err)
	}

	slog.Debug("executing statement", "sql", sql, "args", args)

	rows, _ := db.Query(ctx, sql, args...)
	records, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		return []T{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return records, nil
}

// FindAll retrieves every tuple from the table.
func FindAll[T Model](ctx context.Context, db Queryer) ([]T, error) {
	return Search[T](ctx, db, nil)
}

// Create inserts a new record and returns the stored row, including any
// database-assigned defaults (id, name, created_at, ...).
func Create[T Model](ctx context.Context, db Queryer, record T) (*T, error) {
	tags := GetAllDBTagsFromStruct(record)

	query := psql.Insert(im.Into(record.TableName()), im.Returning("*"))
	columns, values := columnsAndValues(record, tags)
	query.Expression.Columns = columns
	query.Apply(im.Values(psql.Arg(values...)))

	sql, args, err := query.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert expression: %w", err)
	}

	slog.Debug("executing statement", "sql", sql, "args", args)

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute insert: %w", err)
	}

	record, err = pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		return nil, fmt.Errorf("failed to extract inserted record: %w", err)
	}
	return &record, nil
}

// Update overwrites every column of a record with a matching primary key and returns
// the stored row.
func Update[T Model](ctx context.Context, db Queryer, id any, record T) (*T, error) {
	tags := GetAllDBTagsFromStruct(record)

	mods := []bob.Mod[*dialect.UpdateQuery]{
		um.Table(record.TableName()),
		um.Where(psql.Quote(record.PrimaryKey()).EQ(psql.Arg(id))),
		um.Returning("*"),
	}

	columns, values := columnsAndValues(record, tags)
	for i, column := range columns {
		mods = append(mods, um.SetCol(column).ToArg(values[i]))
	}

	sql, args, err := psql.Update(mods...).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build update expression: %w", err)
	}

	slog.Debug("executing statement", "sql", sql, "args", args)

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute update: %w", err)
	}

	record, err = pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		return nil, fmt.Errorf("failed to extract updated record: %w", err)
	}
	return &record, nil
}

// Delete removes a specific tuple by primary key and returns the number of rows
// affected.
func Delete[T Model](ctx context.Context, db Queryer, id any) (int64, error) {
	var record T
	query := psql.Delete(
		dm.From(record.TableName()),
		dm.Where(psql.Quote(record.PrimaryKey()).EQ(psql.Arg(id))),
	)

	sql, args, err := query.Build()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete expression: %w", err)
	}

	slog.Debug("executing statement", "sql", sql, "args", args)

	result, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute delete: %w", err)
	}
	return result.RowsAffected(), nil
}

// columnsAndValues extracts the tagged columns and their reflected values from the
// record; each column sits at the same index as its value, and the order follows map
// iteration, so it differs between calls.
func columnsAndValues[T Model](record T, tags DBTag) ([]string, []any) {
	columns := make([]string, 0, len(tags))
	values := make([]any, 0, len(tags))
	v := reflectValue(record)
	for fieldName, column := range tags {
		columns = append(columns, column)
		values = append(values, v.FieldByName(fieldName).Interface())
	}
	return columns, values
}
