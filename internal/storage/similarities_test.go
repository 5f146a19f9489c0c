package storage_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthci/buildpulse/internal/storage"
	"github.com/hearthci/buildpulse/internal/storagekernel"
	"github.com/hearthci/buildpulse/internal/types"
)

// TestCountSimilarityGroupsForLatestBuilds_ExcludesStaleBuilds seeds one
// cluster attached only to a job's superseded build and one attached to its
// current build, mirroring the "build_id IN (... HAVING MAX(number))" scope
// every read-side statistics query in this design applies: a report only
// surfaces groups still relevant to each job's most recent build, while the
// unscoped count still reports every group ever clustered.
func TestCountSimilarityGroupsForLatestBuilds_ExcludesStaleBuilds(t *testing.T) {
	k := openKernel(t)
	ctx := context.Background()

	type counts struct{ all, latest int64 }
	c, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (counts, error) {
		job, err := storage.UpsertJob(ctx, conn, types.Job{Name: "j", URL: "http://ci/job/j/"})
		require.NoError(t, err)

		staleBuild, err := storage.UpsertBuild(ctx, conn, types.Build{URL: "http://ci/job/j/1/", Number: 1, JobID: job.ID})
		require.NoError(t, err)
		currentBuild, err := storage.UpsertBuild(ctx, conn, types.Build{URL: "http://ci/job/j/2/", Number: 2, JobID: job.ID})
		require.NoError(t, err)

		staleRun, err := storage.UpsertRun(ctx, conn, types.Run{URL: "http://ci/job/j/1/r/", DisplayName: "r", BuildID: staleBuild.ID})
		require.NoError(t, err)
		currentRun, err := storage.UpsertRun(ctx, conn, types.Run{URL: "http://ci/job/j/2/r/", DisplayName: "r", BuildID: currentBuild.ID})
		require.NoError(t, err)

		tag, err := storage.UpsertTag(ctx, conn, types.Tag{Name: "t", Pattern: "x", From: types.FromConsole, Severity: types.SeverityError})
		require.NoError(t, err)

		staleFinding, err := storage.Findings.Insert(ctx, conn, types.Finding{RunID: staleRun.ID, TagID: tag.ID})
		require.NoError(t, err)
		currentFinding, err := storage.Findings.Insert(ctx, conn, types.Finding{RunID: currentRun.ID, TagID: tag.ID})
		require.NoError(t, err)

		require.NoError(t, storage.InsertSimilarity(ctx, conn, 111, staleFinding.ID))
		require.NoError(t, storage.InsertSimilarity(ctx, conn, 222, currentFinding.ID))

		all, err := storage.CountSimilarityGroups(ctx, conn)
		if err != nil {
			return counts{}, err
		}
		latest, err := storage.CountSimilarityGroupsForLatestBuilds(ctx, conn)
		return counts{all: all, latest: latest}, err
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), c.all, "both groups exist in the store")
	require.Equal(t, int64(1), c.latest, "only the group on job j's current build should surface in a report")
}
