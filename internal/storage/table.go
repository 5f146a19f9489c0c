package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Table is a declarative description of one entity's storage shape: a table
// name, its non-id column list, a parameter-binder (record -> positional
// args for INSERT, in Columns order), and a row-mapper (a *sql.Row ->
// record). The four canonical statements are derived mechanically from
// these three things; entity packages add bespoke queries alongside.
type Table[T any] struct {
	Name    string
	Columns []string
	Bind    func(v T) []any
	Scan    func(scan func(dest ...any) error) (T, error)
}

func (t Table[T]) insertSQL() string {
	placeholders := strings.Repeat("?,", len(t.Columns))
	placeholders = strings.TrimSuffix(placeholders, ",")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(t.Columns, ","), placeholders)
}

func (t Table[T]) selectAllSQL() string {
	return fmt.Sprintf("SELECT id,%s FROM %s", strings.Join(t.Columns, ","), t.Name)
}

// Insert returns the newly-assigned row id wrapped alongside v.
func (t Table[T]) Insert(ctx context.Context, conn *sql.Conn, v T) (Row[T], error) {
	res, err := conn.ExecContext(ctx, t.insertSQL(), t.Bind(v)...)
	if err != nil {
		return Row[T]{}, fmt.Errorf("storage: insert into %s: %w", t.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Row[T]{}, fmt.Errorf("storage: last insert id for %s: %w", t.Name, err)
	}
	return Row[T]{ID: id, Value: v}, nil
}

// ErrNotFound is a sentinel for code paths that must turn a miss into an
// error. The lookups in this package never return it: SelectOne and the
// Find* helpers report a miss as ok=false.
var ErrNotFound = errors.New("storage: row not found")

// SelectOne fetches a single row by id.
func (t Table[T]) SelectOne(ctx context.Context, conn *sql.Conn, id int64) (Row[T], bool, error) {
	row := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT id,%s FROM %s WHERE id=?", strings.Join(t.Columns, ","), t.Name), id)
	var gotID int64
	scan := func(dest ...any) error {
		return row.Scan(append([]any{&gotID}, dest...)...)
	}
	v, err := t.Scan(scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Row[T]{}, false, nil
	}
	if err != nil {
		return Row[T]{}, false, fmt.Errorf("storage: select %s id=%d: %w", t.Name, id, err)
	}
	return Row[T]{ID: gotID, Value: v}, true, nil
}

// SelectAll fetches every row in the table.
func (t Table[T]) SelectAll(ctx context.Context, conn *sql.Conn) ([]Row[T], error) {
	rows, err := conn.QueryContext(ctx, t.selectAllSQL())
	if err != nil {
		return nil, fmt.Errorf("storage: select all %s: %w", t.Name, err)
	}
	defer rows.Close()
	return t.scanRows(rows)
}

func (t Table[T]) scanRows(rows *sql.Rows) ([]Row[T], error) {
	var out []Row[T]
	for rows.Next() {
		var id int64
		scan := func(dest ...any) error {
			return rows.Scan(append([]any{&id}, dest...)...)
		}
		v, err := t.Scan(scan)
		if err != nil {
			return nil, fmt.Errorf("storage: scanning %s row: %w", t.Name, err)
		}
		out = append(out, Row[T]{ID: id, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterating %s rows: %w", t.Name, err)
	}
	return out, nil
}

// Count returns the number of rows currently in the table.
func (t Table[T]) Count(ctx context.Context, conn *sql.Conn) (int64, error) {
	row := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", t.Name))
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count %s: %w", t.Name, err)
	}
	return n, nil
}

// DeleteAll removes every row in the table but retains the table itself.
// Purging the cache removes all rows across every table without dropping
// the schema.
func (t Table[T]) DeleteAll(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t.Name)); err != nil {
		return fmt.Errorf("storage: delete all %s: %w", t.Name, err)
	}
	return nil
}

// Delete removes the row with the given id.
func (t Table[T]) Delete(ctx context.Context, conn *sql.Conn, id int64) error {
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id=?", t.Name), id); err != nil {
		return fmt.Errorf("storage: delete %s id=%d: %w", t.Name, id, err)
	}
	return nil
}
