package report

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthci/buildpulse/internal/storage"
	"github.com/hearthci/buildpulse/internal/storage/migrations"
	"github.com/hearthci/buildpulse/internal/storagekernel"
	"github.com/hearthci/buildpulse/internal/types"
)

func TestLoad_CountsEveryEntity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	k, err := storagekernel.Open(context.Background(), path, migrations.Apply)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	ctx := context.Background()

	c, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (Counts, error) {
		job, err := storage.UpsertJob(ctx, conn, types.Job{Name: "j", URL: "http://ci/job/j/"})
		require.NoError(t, err)
		build, err := storage.UpsertBuild(ctx, conn, types.Build{URL: "http://ci/job/j/1/", Number: 1, JobID: job.ID})
		require.NoError(t, err)
		_, err = storage.UpsertRun(ctx, conn, types.Run{URL: "http://ci/job/j/1/label=a/", DisplayName: "a", BuildID: build.ID})
		require.NoError(t, err)
		return Load(ctx, conn)
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), c.Jobs)
	require.Equal(t, int64(1), c.Builds)
	require.Equal(t, int64(1), c.Runs)
	require.Equal(t, int64(0), c.Artifacts)
	require.Equal(t, int64(0), c.Findings)
	require.Equal(t, int64(0), c.SimilarityGroups)
}

func TestRender_ProducesNonEmptyTable(t *testing.T) {
	out := Render(Counts{Jobs: 2, Builds: 3, Runs: 4, Artifacts: 1, Findings: 5, SimilarityGroups: 2})
	require.Contains(t, out, "jobs")
	require.Contains(t, out, "buildpulse summary")
}
