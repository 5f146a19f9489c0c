package storage_test

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

func openKernel(t *testing.T) *storagekernel.Kernel {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	k, err := storagekernel.Open(context.Background(), path, migrations.Apply)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func TestPurgeAll_RemovesRowsButKeepsTables(t *testing.T) {
	k := openKernel(t)
	ctx := context.Background()

	_, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (struct{}, error) {
		job, err := storage.UpsertJob(ctx, conn, types.Job{Name: "j", URL: "http://ci/job/j/"})
		require.NoError(t, err)
		_, err = storage.UpsertBuild(ctx, conn, types.Build{URL: "http://ci/job/j/1/", Number: 1, JobID: job.ID})
		require.NoError(t, err)
		_, err = storage.UpsertTag(ctx, conn, types.Tag{Name: "t", Pattern: "x", From: types.FromConsole, Severity: types.SeverityError})
		require.NoError(t, err)
		return struct{}{}, nil
	})
	require.NoError(t, err)

	counts, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) ([2]int64, error) {
		jobs, err := storage.Jobs.Count(ctx, conn)
		if err != nil {
			return [2]int64{}, err
		}
		builds, err := storage.Builds.Count(ctx, conn)
		return [2]int64{jobs, builds}, err
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), counts[0])
	require.Equal(t, int64(1), counts[1])

	_, err = storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (struct{}, error) {
		return struct{}{}, storage.PurgeAll(ctx, conn)
	})
	require.NoError(t, err)

	after, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) ([3]int64, error) {
		jobs, err := storage.Jobs.Count(ctx, conn)
		if err != nil {
			return [3]int64{}, err
		}
		builds, err := storage.Builds.Count(ctx, conn)
		if err != nil {
			return [3]int64{}, err
		}
		tags, err := storage.Tags.Count(ctx, conn)
		return [3]int64{jobs, builds, tags}, err
	})
	require.NoError(t, err)
	require.Equal(t, [3]int64{0, 0, 0}, after)
}

func TestDeleteOrphanTags_KeepsOnlyReferencedTags(t *testing.T) {
	k := openKernel(t)
	ctx := context.Background()

	n, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (int64, error) {
		job, err := storage.UpsertJob(ctx, conn, types.Job{Name: "j", URL: "http://ci/job/j/"})
		require.NoError(t, err)
		build, err := storage.UpsertBuild(ctx, conn, types.Build{URL: "http://ci/job/j/1/", Number: 1, JobID: job.ID})
		require.NoError(t, err)
		run, err := storage.UpsertRun(ctx, conn, types.Run{URL: "http://ci/job/j/1/r/", DisplayName: "r", BuildID: build.ID})
		require.NoError(t, err)
		used, err := storage.UpsertTag(ctx, conn, types.Tag{Name: "used", Pattern: "x", From: types.FromConsole, Severity: types.SeverityError})
		require.NoError(t, err)
		_, err = storage.UpsertTag(ctx, conn, types.Tag{Name: "unused", Pattern: "y", From: types.FromConsole, Severity: types.SeverityError})
		require.NoError(t, err)
		_, err = storage.Findings.Insert(ctx, conn, types.Finding{RunID: run.ID, TagID: used.ID, Duplicates: 0})
		require.NoError(t, err)
		return storage.DeleteOrphanTags(ctx, conn)
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	remaining, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) ([]storage.Row[types.Tag], error) {
		return storage.Tags.SelectAll(ctx, conn)
	})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "used", remaining[0].Value.Name)
}

func TestInvalidateRunsWithDifferentSchema_ResetsStaleRuns(t *testing.T) {
	k := openKernel(t)
	ctx := context.Background()

	type seeded struct {
		runID int64
	}
	s, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (seeded, error) {
		job, err := storage.UpsertJob(ctx, conn, types.Job{Name: "j", URL: "http://ci/job/j/"})
		require.NoError(t, err)
		build, err := storage.UpsertBuild(ctx, conn, types.Build{URL: "http://ci/job/j/1/", Number: 1, JobID: job.ID})
		require.NoError(t, err)
		run, err := storage.UpsertRun(ctx, conn, types.Run{URL: "http://ci/job/j/1/r/", DisplayName: "r", BuildID: build.ID})
		require.NoError(t, err)
		require.NoError(t, storage.SetRunsTagSchema(ctx, conn, []int64{run.ID}, 111))
		return seeded{runID: run.ID}, nil
	})
	require.NoError(t, err)

	n, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (int64, error) {
		return storage.InvalidateRunsWithDifferentSchema(ctx, conn, 222)
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	stillNull, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (bool, error) {
		runs, err := storage.RunsNeedingParse(ctx, conn)
		if err != nil {
			return false, err
		}
		for _, r := range runs {
			if r.ID == s.runID {
				return true, nil
			}
		}
		return false, nil
	})
	require.NoError(t, err)
	require.True(t, stillNull)
}
