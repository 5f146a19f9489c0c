package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hearthci/buildpulse/internal/types"
)

// Builds is the Build entity's Table. url is Build's natural unique key.
var Builds = Table[types.Build]{
	Name:    "builds",
	Columns: []string{"url", "status", "number", "timestamp_ms", "job_id"},
	Bind: func(v types.Build) []any {
		return []any{v.URL, v.Status, v.Number, v.TimestampMillis, v.JobID}
	},
	Scan: func(scan func(dest ...any) error) (types.Build, error) {
		var v types.Build
		if err := scan(&v.URL, &v.Status, &v.Number, &v.TimestampMillis, &v.JobID); err != nil {
			return v, err
		}
		return v, nil
	},
}

// UpsertBuild collapses on Build.URL, refreshing status and timestamp.
func UpsertBuild(ctx context.Context, conn *sql.Conn, v types.Build) (Row[types.Build], error) {
	row := conn.QueryRowContext(ctx, `
		INSERT INTO builds (url, status, number, timestamp_ms, job_id) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET status=excluded.status, timestamp_ms=excluded.timestamp_ms
		RETURNING id`,
		v.URL, v.Status, v.Number, v.TimestampMillis, v.JobID,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return Row[types.Build]{}, fmt.Errorf("storage: upsert build %q: %w", v.URL, err)
	}
	return Row[types.Build]{ID: id, Value: v}, nil
}

// BuildsForJob returns every cached Build under jobID ordered most-recent
// number first. The puller works from the CI server's own build listing
// and does not call it.
func BuildsForJob(ctx context.Context, conn *sql.Conn, jobID int64) ([]Row[types.Build], error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT id, url, status, number, timestamp_ms, job_id FROM builds
		WHERE job_id=? ORDER BY number DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("storage: builds for job id=%d: %w", jobID, err)
	}
	defer rows.Close()
	var out []Row[types.Build]
	for rows.Next() {
		var r Row[types.Build]
		if err := rows.Scan(&r.ID, &r.Value.URL, &r.Value.Status, &r.Value.Number, &r.Value.TimestampMillis, &r.Value.JobID); err != nil {
			return nil, fmt.Errorf("storage: scanning build row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteBuildsOlderThan cascades Build -> Run -> Artifact -> Finding ->
// Similarity for every Build under jobID whose number is less than
// keepNumber. See DESIGN.md for the retention-policy decision this
// implements: keepNumber is the smallest number among the N most-recent
// builds actually retained, not simply job.LastBuildNumber.
func DeleteBuildsOlderThan(ctx context.Context, conn *sql.Conn, jobID, keepNumber int64) (int64, error) {
	res, err := conn.ExecContext(ctx, `DELETE FROM builds WHERE job_id=? AND number < ?`, jobID, keepNumber)
	if err != nil {
		return 0, fmt.Errorf("storage: delete builds older than %d for job id=%d: %w", keepNumber, jobID, err)
	}
	return res.RowsAffected()
}
