package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hearthci/buildpulse/internal/types"
)

// Findings is the Finding (Issue) entity's Table.
var Findings = Table[types.Finding]{
	Name:    "issues",
	Columns: []string{"snippet_start", "snippet_end", "run_id", "artifact_id", "tag_id", "duplicates"},
	Bind: func(v types.Finding) []any {
		return []any{v.SnippetStart, v.SnippetEnd, v.RunID, v.ArtifactID, v.TagID, v.Duplicates}
	},
	Scan: func(scan func(dest ...any) error) (types.Finding, error) {
		var v types.Finding
		if err := scan(&v.SnippetStart, &v.SnippetEnd, &v.RunID, &v.ArtifactID, &v.TagID, &v.Duplicates); err != nil {
			return v, err
		}
		return v, nil
	},
}

// FindingsForRun returns every Finding attached to runID, severity
// untouched; callers filter metadata-severity out where that distinction
// matters to them.
func FindingsForRun(ctx context.Context, conn *sql.Conn, runID int64) ([]Row[types.Finding], error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT id, snippet_start, snippet_end, run_id, artifact_id, tag_id, duplicates
		FROM issues WHERE run_id=?`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: findings for run id=%d: %w", runID, err)
	}
	defer rows.Close()
	return scanFindingRows(rows)
}

// NonMetadataFindings returns every Finding whose tag severity is not
// "metadata" — the clustering engine's input, since metadata tags exist for
// annotation rather than failure classification and never participate in
// similarity grouping.
func NonMetadataFindings(ctx context.Context, conn *sql.Conn) ([]Row[types.Finding], error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT issues.id, snippet_start, snippet_end, run_id, artifact_id, tag_id, duplicates
		FROM issues JOIN tags ON issues.tag_id = tags.id
		WHERE tags.severity != 'metadata'
		ORDER BY issues.id`)
	if err != nil {
		return nil, fmt.Errorf("storage: non-metadata findings: %w", err)
	}
	defer rows.Close()
	return scanFindingRows(rows)
}

func scanFindingRows(rows *sql.Rows) ([]Row[types.Finding], error) {
	var out []Row[types.Finding]
	for rows.Next() {
		var r Row[types.Finding]
		if err := rows.Scan(&r.ID, &r.Value.SnippetStart, &r.Value.SnippetEnd, &r.Value.RunID, &r.Value.ArtifactID, &r.Value.TagID, &r.Value.Duplicates); err != nil {
			return nil, fmt.Errorf("storage: scanning finding row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
