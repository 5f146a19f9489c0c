// Package puller implements the CI Puller: the bounded-concurrency descent
// Project -> Job -> Build -> Run -> Artifact that mirrors a CI server's
// matrix-project state into the Storage Kernel, skipping work already
// cached from a prior invocation.
package puller

import (
	"context"
	"database/sql"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hearthci/buildpulse/internal/bperrors"
	"github.com/hearthci/buildpulse/internal/ciserver"
	"github.com/hearthci/buildpulse/internal/postprocess"
	"github.com/hearthci/buildpulse/internal/storage"
	"github.com/hearthci/buildpulse/internal/storagekernel"
	"github.com/hearthci/buildpulse/internal/types"
)

// ArtifactRule matches an artifact by relative path and optionally
// post-processes its bytes before they are persisted.
type ArtifactRule struct {
	Path        *regexp.Regexp
	PostProcess []string
}

// Config parameterizes one pull.
type Config struct {
	Blocklist    []string
	LastNHistory int
	Artifacts    []ArtifactRule
	Concurrency  int // 0 defaults to 20, matching the permit-set default.
}

func (c Config) concurrency() int {
	if c.Concurrency <= 0 {
		return 20
	}
	return c.Concurrency
}

func (c Config) blocked(name string) bool {
	for _, b := range c.Blocklist {
		if b == name {
			return true
		}
	}
	return false
}

// Puller descends a CI server's view and mirrors it into the cache.
type Puller struct {
	Server ciserver.Server
	Kernel *storagekernel.Kernel
	Config Config
}

// Run pulls every non-blocklisted job's last_n_history builds. Every branch
// of the descent runs to completion regardless of siblings' failures: a
// per-run or per-artifact error is recorded and logged but never aborts the
// rest of the pull. The first recorded error is returned after everything
// else has finished, so the caller can set a non-zero exit status without
// having silently skipped work.
//
// A single semaphore, sized to Config.Concurrency, is shared across the
// entire Job/Build/Run/Artifact descent: it is acquired immediately before
// every outbound HTTP call this pull makes (GetBuilds, GetRunDetail,
// FetchConsole, FetchArtifact) and every artifact post-process subprocess
// spawn, and released immediately after. Fan-out at every level (jobs,
// builds, runs, artifacts) happens via goroutines; the semaphore, not the
// goroutine count, is what bounds actual concurrent I/O.
func (p *Puller) Run(ctx context.Context) error {
	jobs, err := p.Server.GetView(ctx)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var errs []error
	addErr := func(err error) {
		if err == nil {
			return
		}
		slog.Warn("puller: recorded error", "error", err)
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	sem := semaphore.NewWeighted(int64(p.Config.concurrency()))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		if p.Config.blocked(job.Name) {
			if err := p.purgeBlockedJob(egCtx, job.Name); err != nil {
				addErr(err)
			}
			continue
		}
		eg.Go(func() error {
			p.pullJob(egCtx, sem, job, addErr)
			return nil
		})
	}

	_ = eg.Wait()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (p *Puller) purgeBlockedJob(ctx context.Context, name string) error {
	_, err := storagekernel.Transact(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) (struct{}, error) {
		row, ok, err := storage.FindJobByName(ctx, conn, name)
		if err != nil {
			return struct{}{}, bperrors.Wrap(bperrors.Storage, err)
		}
		if !ok {
			return struct{}{}, nil
		}
		return struct{}{}, bperrors.Wrap(bperrors.Storage, storage.PurgeJobSubtree(ctx, conn, row.ID))
	})
	return err
}

func (p *Puller) pullJob(ctx context.Context, sem *semaphore.Weighted, job ciserver.JobRef, addErr func(error)) {
	jobRow, err := storagekernel.Transact(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) (storage.Row[types.Job], error) {
		return storage.UpsertJob(ctx, conn, types.Job{Name: job.Name, URL: job.URL})
	})
	if err != nil {
		addErr(bperrors.Wrap(bperrors.Storage, err))
		return
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		addErr(err)
		return
	}
	builds, err := p.Server.GetBuilds(ctx, job)
	sem.Release(1)
	if err != nil {
		addErr(err)
		return
	}
	if p.Config.LastNHistory > 0 && len(builds) > p.Config.LastNHistory {
		builds = builds[:p.Config.LastNHistory]
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, build := range builds {
		build := build
		eg.Go(func() error {
			p.pullBuild(egCtx, sem, jobRow.ID, job, build, addErr)
			return nil
		})
	}
	_ = eg.Wait()

	if len(builds) > 0 {
		keep := builds[len(builds)-1].Number
		if _, err := storagekernel.Transact(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) (int64, error) {
			return storage.DeleteBuildsOlderThan(ctx, conn, jobRow.ID, keep)
		}); err != nil {
			addErr(bperrors.Wrap(bperrors.Storage, err))
		}
	}
}

func (p *Puller) pullBuild(ctx context.Context, sem *semaphore.Weighted, jobID int64, job ciserver.JobRef, build ciserver.BuildRef, addErr func(error)) {
	var status *types.BuildStatus
	if build.Status != "" {
		s := types.BuildStatus(strings.ToLower(build.Status))
		status = &s
	}
	buildRow, err := storagekernel.Transact(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) (storage.Row[types.Build], error) {
		return storage.UpsertBuild(ctx, conn, types.Build{
			URL:             build.URL,
			Status:          status,
			Number:          build.Number,
			TimestampMillis: build.TimestampMillis,
			JobID:           jobID,
		})
	})
	if err != nil {
		addErr(bperrors.Wrap(bperrors.Storage, err))
		return
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, run := range build.Runs {
		run := run
		if run.Number != build.Number {
			// Runs not matching a build number are skipped.
			continue
		}
		eg.Go(func() error {
			p.pullRun(egCtx, sem, job, build, buildRow.ID, run, addErr)
			return nil
		})
	}
	_ = eg.Wait()
}

func (p *Puller) pullRun(ctx context.Context, sem *semaphore.Weighted, job ciserver.JobRef, build ciserver.BuildRef, buildID int64, run ciserver.RunRef, addErr func(error)) {
	type lookup struct {
		row   storage.Row[types.Run]
		found bool
	}
	found, err := storagekernel.Submit(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) (lookup, error) {
		row, ok, err := storage.FindRunByURL(ctx, conn, run.URL)
		return lookup{row, ok}, err
	})
	if err != nil {
		addErr(bperrors.Wrap(bperrors.Storage, err))
		return
	}
	if found.found {
		// Cache hit: reuse the existing row as-is. No permit is spent and
		// no detail is refetched — the run is simply emitted downstream.
		return
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		addErr(err)
		return
	}
	detail, err := p.Server.GetRunDetail(ctx, job, build, run)
	sem.Release(1)
	if err != nil {
		addErr(err)
		return
	}

	status := types.BuildStatus(strings.ToLower(detail.Status))
	runRow, err := storagekernel.Transact(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) (storage.Row[types.Run], error) {
		return storage.UpsertRun(ctx, conn, types.Run{
			URL:         detail.URL,
			Status:      &status,
			DisplayName: detail.DisplayName,
			BuildID:     buildID,
		})
	})
	if err != nil {
		addErr(bperrors.Wrap(bperrors.Storage, err))
		return
	}

	if types.FailingStatus(status) {
		if err := sem.Acquire(ctx, 1); err != nil {
			addErr(err)
		} else {
			log, err := p.Server.FetchConsole(ctx, *detail)
			sem.Release(1)
			if err != nil {
				addErr(err)
			} else if _, err := storagekernel.Transact(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) (struct{}, error) {
				return struct{}{}, storage.SetRunLog(ctx, conn, runRow.ID, log)
			}); err != nil {
				addErr(bperrors.Wrap(bperrors.Storage, err))
			}
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, path := range detail.ArtifactPaths {
		path := path
		eg.Go(func() error {
			p.pullArtifact(egCtx, sem, runRow.ID, *detail, path, addErr)
			return nil
		})
	}
	_ = eg.Wait()
}

func (p *Puller) pullArtifact(ctx context.Context, sem *semaphore.Weighted, runID int64, run ciserver.RunDetail, path string, addErr func(error)) {
	rule := p.matchArtifact(path)
	if rule == nil {
		return
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		addErr(err)
		return
	}
	contents, err := p.Server.FetchArtifact(ctx, run, path)
	sem.Release(1)
	if err != nil {
		addErr(err)
		return
	}

	if len(rule.PostProcess) > 0 {
		if err := sem.Acquire(ctx, 1); err != nil {
			addErr(err)
			return
		}
		processed, err := postprocess.Run(ctx, rule.PostProcess[0], rule.PostProcess[1:], contents, run.DisplayName, run.URL)
		sem.Release(1)
		if err != nil {
			addErr(bperrors.Wrap(bperrors.Subprocess, err))
			contents = []byte{}
		} else {
			contents = processed
		}
	}

	if _, err := storagekernel.Transact(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) (storage.Row[types.Artifact], error) {
		return storage.Artifacts.Insert(ctx, conn, types.Artifact{Path: path, Contents: contents, RunID: runID})
	}); err != nil {
		addErr(bperrors.Wrap(bperrors.Storage, err))
	}
}

func (p *Puller) matchArtifact(path string) *ArtifactRule {
	for i := range p.Config.Artifacts {
		if p.Config.Artifacts[i].Path.MatchString(path) {
			return &p.Config.Artifacts[i]
		}
	}
	return nil
}
