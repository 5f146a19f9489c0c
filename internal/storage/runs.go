package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hearthci/buildpulse/internal/types"
)

// Runs is the Run entity's Table. url is Run's natural unique key.
var Runs = Table[types.Run]{
	Name:    "runs",
	Columns: []string{"url", "status", "display_name", "log", "tag_schema", "build_id"},
	Bind: func(v types.Run) []any {
		return []any{v.URL, v.Status, v.DisplayName, v.Log, nullableUint64(v.TagSchema), v.BuildID}
	},
	Scan: func(scan func(dest ...any) error) (types.Run, error) {
		var v types.Run
		var tagSchema sql.NullInt64
		if err := scan(&v.URL, &v.Status, &v.DisplayName, &v.Log, &tagSchema, &v.BuildID); err != nil {
			return v, err
		}
		v.TagSchema = fromNullableUint64(tagSchema)
		return v, nil
	},
}

// nullableUint64 bit-reinterprets a 64-bit unsigned fingerprint as a signed
// int64 for storage, since SQLite's INTEGER affinity is always signed.
func nullableUint64(v *uint64) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func fromNullableUint64(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	u := uint64(n.Int64)
	return &u
}

// UpsertRun collapses on Run.URL. When a cache hit happens (the row already
// exists), status refreshes but log and tag_schema are left untouched —
// callers that need to overwrite the log must call SetRunLog explicitly,
// since a run's log is only ever fetched and written once, on first sight.
func UpsertRun(ctx context.Context, conn *sql.Conn, v types.Run) (Row[types.Run], error) {
	row := conn.QueryRowContext(ctx, `
		INSERT INTO runs (url, status, display_name, log, tag_schema, build_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET status=excluded.status, display_name=excluded.display_name
		RETURNING id`,
		v.URL, v.Status, v.DisplayName, v.Log, nullableUint64(v.TagSchema), v.BuildID,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return Row[types.Run]{}, fmt.Errorf("storage: upsert run %q: %w", v.URL, err)
	}
	return Row[types.Run]{ID: id, Value: v}, nil
}

// FindRunByURL implements the "is this Run already cached?" lookup as an
// explicit optional result, not an error-enum.
func FindRunByURL(ctx context.Context, conn *sql.Conn, url string) (Row[types.Run], bool, error) {
	row := conn.QueryRowContext(ctx, `SELECT id, url, status, display_name, log, tag_schema, build_id FROM runs WHERE url=?`, url)
	var out Row[types.Run]
	var tagSchema sql.NullInt64
	err := row.Scan(&out.ID, &out.Value.URL, &out.Value.Status, &out.Value.DisplayName, &out.Value.Log, &tagSchema, &out.Value.BuildID)
	if err == sql.ErrNoRows {
		return Row[types.Run]{}, false, nil
	}
	if err != nil {
		return Row[types.Run]{}, false, fmt.Errorf("storage: find run %q: %w", url, err)
	}
	out.Value.TagSchema = fromNullableUint64(tagSchema)
	return out, true, nil
}

// SetRunLog writes a Run's console log, once per cache miss.
func SetRunLog(ctx context.Context, conn *sql.Conn, runID int64, log string) error {
	if _, err := conn.ExecContext(ctx, `UPDATE runs SET log=? WHERE id=?`, log, runID); err != nil {
		return fmt.Errorf("storage: set run id=%d log: %w", runID, err)
	}
	return nil
}

// RunsNeedingParse returns every Run whose tag_schema is null — the input
// set to the parsing phase.
func RunsNeedingParse(ctx context.Context, conn *sql.Conn) ([]Row[types.Run], error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT id, url, status, display_name, log, tag_schema, build_id FROM runs
		WHERE tag_schema IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("storage: runs needing parse: %w", err)
	}
	defer rows.Close()
	var out []Row[types.Run]
	for rows.Next() {
		var r Row[types.Run]
		var tagSchema sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Value.URL, &r.Value.Status, &r.Value.DisplayName, &r.Value.Log, &tagSchema, &r.Value.BuildID); err != nil {
			return nil, fmt.Errorf("storage: scanning run row: %w", err)
		}
		r.Value.TagSchema = fromNullableUint64(tagSchema)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetRunsTagSchema batches the end-of-phase update: every run's tag_schema
// is set to the current catalog fingerprint in one statement rather than
// one UPDATE per run.
func SetRunsTagSchema(ctx context.Context, conn *sql.Conn, runIDs []int64, fingerprint uint64) error {
	if len(runIDs) == 0 {
		return nil
	}
	placeholders := make([]any, 0, len(runIDs)+1)
	placeholders = append(placeholders, int64(fingerprint))
	q := `UPDATE runs SET tag_schema=? WHERE id IN (`
	for i, id := range runIDs {
		if i > 0 {
			q += ","
		}
		q += "?"
		placeholders = append(placeholders, id)
	}
	q += ")"
	if _, err := conn.ExecContext(ctx, q, placeholders...); err != nil {
		return fmt.Errorf("storage: batch set tag_schema: %w", err)
	}
	return nil
}

// InvalidateRunsWithDifferentSchema deletes everything derived from a stale
// tag catalog: it (a) removes Similarities referencing findings in stale
// runs, (b) removes those findings, (c) nulls the runs' tag_schema,
// restoring "unparsed". Runs already null are left alone (they are
// unparsed, not stale).
func InvalidateRunsWithDifferentSchema(ctx context.Context, conn *sql.Conn, current uint64) (int64, error) {
	cur := int64(current)
	if _, err := conn.ExecContext(ctx, `
		DELETE FROM similarities WHERE finding_id IN (
			SELECT issues.id FROM issues JOIN runs ON issues.run_id = runs.id
			WHERE runs.tag_schema IS NOT NULL AND runs.tag_schema != ?
		)`, cur); err != nil {
		return 0, fmt.Errorf("storage: invalidate similarities: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `
		DELETE FROM issues WHERE run_id IN (
			SELECT id FROM runs WHERE tag_schema IS NOT NULL AND tag_schema != ?
		)`, cur); err != nil {
		return 0, fmt.Errorf("storage: invalidate findings: %w", err)
	}
	res, err := conn.ExecContext(ctx, `
		UPDATE runs SET tag_schema=NULL WHERE tag_schema IS NOT NULL AND tag_schema != ?`, cur)
	if err != nil {
		return 0, fmt.Errorf("storage: invalidate run tag_schema: %w", err)
	}
	return res.RowsAffected()
}
