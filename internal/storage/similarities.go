package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// similarityRow is the Similarity entity's record; similarities below is
// its Table.
type similarityRow struct {
	Hash      uint64
	FindingID int64
}

var similarities = Table[similarityRow]{
	Name:    "similarities",
	Columns: []string{"hash", "finding_id"},
	Bind: func(v similarityRow) []any {
		return []any{int64(v.Hash), v.FindingID}
	},
	Scan: func(scan func(dest ...any) error) (similarityRow, error) {
		var v similarityRow
		var hash int64
		if err := scan(&hash, &v.FindingID); err != nil {
			return v, err
		}
		v.Hash = uint64(hash)
		return v, nil
	},
}

// InsertSimilarity attaches one cluster hash to one finding. Inserting a
// singleton cluster is a caller bug: singleton clusters carry no signal and
// must never reach storage, so the clustering engine filters those out
// before ever calling this.
func InsertSimilarity(ctx context.Context, conn *sql.Conn, hash uint64, findingID int64) error {
	_, err := similarities.Insert(ctx, conn, similarityRow{Hash: hash, FindingID: findingID})
	if err != nil {
		return fmt.Errorf("storage: insert similarity for finding id=%d: %w", findingID, err)
	}
	return nil
}

// DeleteAllSimilarities clears every Similarity row — the clustering engine
// rebuilds clusters end-to-end on each invocation rather than incrementally
// updating prior groupings.
func DeleteAllSimilarities(ctx context.Context, conn *sql.Conn) error {
	return similarities.DeleteAll(ctx, conn)
}

// CountSimilarityGroups returns the number of distinct cluster hashes, i.e.
// the number of equivalence groups rather than the number of rows. This
// counts every group in the store, independent of which build produced it.
func CountSimilarityGroups(ctx context.Context, conn *sql.Conn) (int64, error) {
	row := conn.QueryRowContext(ctx, `SELECT COUNT(DISTINCT hash) FROM similarities`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count similarity groups: %w", err)
	}
	return n, nil
}

// CountSimilarityGroupsForLatestBuilds returns the number of distinct
// cluster hashes that have at least one member finding attached to the
// most recent build of its job. Clustering itself runs over every finding
// in the store, but a report only surfaces groups still relevant to each
// job's current build, the same build_id IN (... GROUP BY job_id HAVING
// MAX(number)) scoping every report query applies.
func CountSimilarityGroupsForLatestBuilds(ctx context.Context, conn *sql.Conn) (int64, error) {
	row := conn.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT s.hash) FROM similarities s
		JOIN issues i ON i.id = s.finding_id
		JOIN runs r ON r.id = i.run_id
		WHERE r.build_id IN (
			SELECT id FROM builds GROUP BY job_id HAVING MAX(number)
		)`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count similarity groups for latest builds: %w", err)
	}
	return n, nil
}
