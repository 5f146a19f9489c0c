// Package report is the pure read-side of the cache: it derives a summary
// of the current store's contents without mutating anything. An external
// HTML renderer is the richer consumer of this contract; this package
// also produces the terminal-facing summary cmd/buildpulse prints at the
// end of a run.
package report

import (
	"context"
	"database/sql"

	"github.com/hearthci/buildpulse/internal/storage"
)

// Counts is a snapshot of every entity's row count, plus the number of
// similarity groups (distinct cluster hashes, not raw row count) still
// relevant to each job's most recent build — the same scope every
// statistics query in this design uses, rather than a raw total across
// every build ever retained.
type Counts struct {
	Jobs             int64
	Builds           int64
	Runs             int64
	Artifacts        int64
	Findings         int64
	SimilarityGroups int64
}

// Load reads Counts from the store. It takes no lock beyond whatever the
// caller's transaction already holds; it never writes.
func Load(ctx context.Context, conn *sql.Conn) (Counts, error) {
	var c Counts
	var err error
	if c.Jobs, err = storage.Jobs.Count(ctx, conn); err != nil {
		return Counts{}, err
	}
	if c.Builds, err = storage.Builds.Count(ctx, conn); err != nil {
		return Counts{}, err
	}
	if c.Runs, err = storage.Runs.Count(ctx, conn); err != nil {
		return Counts{}, err
	}
	if c.Artifacts, err = storage.Artifacts.Count(ctx, conn); err != nil {
		return Counts{}, err
	}
	if c.Findings, err = storage.Findings.Count(ctx, conn); err != nil {
		return Counts{}, err
	}
	if c.SimilarityGroups, err = storage.CountSimilarityGroupsForLatestBuilds(ctx, conn); err != nil {
		return Counts{}, err
	}
	return c, nil
}
