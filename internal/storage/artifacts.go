package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hearthci/buildpulse/internal/types"
)

// Artifacts is the Artifact entity's Table. Contents are immutable after
// insert, so no update/upsert is offered.
var Artifacts = Table[types.Artifact]{
	Name:    "artifacts",
	Columns: []string{"path", "contents", "run_id"},
	Bind: func(v types.Artifact) []any {
		return []any{v.Path, v.Contents, v.RunID}
	},
	Scan: func(scan func(dest ...any) error) (types.Artifact, error) {
		var v types.Artifact
		if err := scan(&v.Path, &v.Contents, &v.RunID); err != nil {
			return v, err
		}
		return v, nil
	},
}

// ArtifactsForRun returns every Artifact belonging to runID, used by the
// Parser to apply the Tag Catalog to each artifact's UTF-8 contents.
func ArtifactsForRun(ctx context.Context, conn *sql.Conn, runID int64) ([]Row[types.Artifact], error) {
	rows, err := conn.QueryContext(ctx, `SELECT id, path, contents, run_id FROM artifacts WHERE run_id=?`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: artifacts for run id=%d: %w", runID, err)
	}
	defer rows.Close()
	var out []Row[types.Artifact]
	for rows.Next() {
		var r Row[types.Artifact]
		if err := rows.Scan(&r.ID, &r.Value.Path, &r.Value.Contents, &r.Value.RunID); err != nil {
			return nil, fmt.Errorf("storage: scanning artifact row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
