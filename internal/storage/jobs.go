package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hearthci/buildpulse/internal/types"
)

// Jobs is the Job entity's Table. name is Job's natural unique key.
var Jobs = Table[types.Job]{
	Name:    "jobs",
	Columns: []string{"name", "url", "last_build_number"},
	Bind: func(v types.Job) []any {
		return []any{v.Name, v.URL, v.LastBuildNumber}
	},
	Scan: func(scan func(dest ...any) error) (types.Job, error) {
		var v types.Job
		if err := scan(&v.Name, &v.URL, &v.LastBuildNumber); err != nil {
			return v, err
		}
		return v, nil
	},
}

// UpsertJob collapses on Job.Name, refreshing url and last_build_number
// while preserving identity, so running the puller twice against an
// unchanged server never produces duplicate job rows.
func UpsertJob(ctx context.Context, conn *sql.Conn, v types.Job) (Row[types.Job], error) {
	row := conn.QueryRowContext(ctx, `
		INSERT INTO jobs (name, url, last_build_number) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET url=excluded.url, last_build_number=excluded.last_build_number
		RETURNING id`,
		v.Name, v.URL, v.LastBuildNumber,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return Row[types.Job]{}, fmt.Errorf("storage: upsert job %q: %w", v.Name, err)
	}
	return Row[types.Job]{ID: id, Value: v}, nil
}

// FindJobByName returns the Job named name, or ok=false if no such job is
// cached yet.
func FindJobByName(ctx context.Context, conn *sql.Conn, name string) (Row[types.Job], bool, error) {
	row := conn.QueryRowContext(ctx, `SELECT id, name, url, last_build_number FROM jobs WHERE name=?`, name)
	var out Row[types.Job]
	err := row.Scan(&out.ID, &out.Value.Name, &out.Value.URL, &out.Value.LastBuildNumber)
	if err == sql.ErrNoRows {
		return Row[types.Job]{}, false, nil
	}
	if err != nil {
		return Row[types.Job]{}, false, fmt.Errorf("storage: find job %q: %w", name, err)
	}
	return out, true, nil
}

// PurgeJobSubtree deletes a Job and, via ON DELETE CASCADE, every Build,
// Run, Artifact, Finding, and Similarity beneath it — what a blocklist
// entry triggers for a job that is no longer tracked.
func PurgeJobSubtree(ctx context.Context, conn *sql.Conn, jobID int64) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM jobs WHERE id=?`, jobID); err != nil {
		return fmt.Errorf("storage: purge job id=%d: %w", jobID, err)
	}
	return nil
}

// PurgeAll removes every row from every table (jobs cascades through
// builds/runs/artifacts/findings/similarities; tags are cleared
// separately since they have no parent). Purging the cache removes all
// rows but retains the tables themselves.
func PurgeAll(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("storage: purge all jobs: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM tags`); err != nil {
		return fmt.Errorf("storage: purge all tags: %w", err)
	}
	return nil
}

// DeleteOrphanTags removes tags no Finding references any longer.
func DeleteOrphanTags(ctx context.Context, conn *sql.Conn) (int64, error) {
	res, err := conn.ExecContext(ctx, `
		DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM issues)`)
	if err != nil {
		return 0, fmt.Errorf("storage: delete orphan tags: %w", err)
	}
	return res.RowsAffected()
}
