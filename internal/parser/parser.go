// Package parser applies the Tag Catalog to every Run awaiting
// classification and records the Findings it produces.
package parser

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/hearthci/buildpulse/internal/bperrors"
	"github.com/hearthci/buildpulse/internal/storage"
	"github.com/hearthci/buildpulse/internal/storagekernel"
	"github.com/hearthci/buildpulse/internal/tagcatalog"
	"github.com/hearthci/buildpulse/internal/types"
)

// Parser classifies every Run whose tag_schema is null against the current
// Tag Catalog, inserting a Finding per match and stamping the run with the
// catalog's fingerprint once its findings are all written.
type Parser struct {
	Kernel      *storagekernel.Kernel
	Catalog     *tagcatalog.Catalog
	Concurrency int // 0 defaults to 20.
}

func (p *Parser) concurrency() int {
	if p.Concurrency <= 0 {
		return 20
	}
	return p.Concurrency
}

// Run classifies every unparsed Run and batches the tag_schema update at
// the end. A per-run classification failure is recorded and logged; it
// neither aborts the phase nor prevents the run's siblings from being
// stamped, but the failed run itself is excluded from the batch update so
// it is retried on the next invocation.
func (p *Parser) Run(ctx context.Context) error {
	runs, err := storagekernel.Submit(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) ([]storage.Row[types.Run], error) {
		return storage.RunsNeedingParse(ctx, conn)
	})
	if err != nil {
		return bperrors.Wrap(bperrors.Storage, err)
	}
	if len(runs) == 0 {
		return nil
	}

	var mu sync.Mutex
	var errs []error
	var parsedIDs []int64
	record := func(runID int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			slog.Warn("parser: run classification failed", "run_id", runID, "error", err)
			errs = append(errs, err)
			return
		}
		parsedIDs = append(parsedIDs, runID)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency())
	for _, run := range runs {
		run := run
		eg.Go(func() error {
			record(run.ID, p.classifyRun(egCtx, run))
			return nil
		})
	}
	_ = eg.Wait()

	if len(parsedIDs) > 0 {
		fingerprint := p.Catalog.Fingerprint()
		if _, err := storagekernel.Transact(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) (struct{}, error) {
			return struct{}{}, storage.SetRunsTagSchema(ctx, conn, parsedIDs, fingerprint)
		}); err != nil {
			errs = append(errs, bperrors.Wrap(bperrors.Storage, err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (p *Parser) classifyRun(ctx context.Context, run storage.Row[types.Run]) error {
	var findings []pendingFinding

	findings = append(findings, toPending(p.Catalog.Classify(types.FromRunName, run.Value.DisplayName), nil)...)

	if run.Value.Log != nil {
		findings = append(findings, toPending(p.Catalog.Classify(types.FromConsole, *run.Value.Log), nil)...)
	}

	artifacts, err := storagekernel.Submit(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) ([]storage.Row[types.Artifact], error) {
		return storage.ArtifactsForRun(ctx, conn, run.ID)
	})
	if err != nil {
		return bperrors.Wrap(bperrors.Storage, err)
	}
	for _, a := range artifacts {
		a := a
		if !utf8.Valid(a.Value.Contents) {
			continue
		}
		artifactID := a.ID
		findings = append(findings, toPending(p.Catalog.Classify(types.FromArtifact, string(a.Value.Contents)), &artifactID)...)
	}

	if len(findings) == 0 {
		return nil
	}

	byName := make(map[string]int64, len(p.Catalog.Tags()))
	_, err = storagekernel.Transact(ctx, p.Kernel, func(ctx context.Context, conn *sql.Conn) (struct{}, error) {
		for _, f := range findings {
			tagID, ok := byName[f.raw.TagName]
			if !ok {
				row, found, err := storage.FindTagByName(ctx, conn, f.raw.TagName)
				if err != nil {
					return struct{}{}, err
				}
				if !found {
					continue // catalog changed mid-phase; skip rather than fail the whole run.
				}
				tagID = row.ID
				byName[f.raw.TagName] = tagID
			}
			if _, err := storage.Findings.Insert(ctx, conn, types.Finding{
				SnippetStart: f.raw.SnippetStart,
				SnippetEnd:   f.raw.SnippetEnd,
				RunID:        run.ID,
				ArtifactID:   f.artifactID,
				TagID:        tagID,
				Duplicates:   f.raw.Duplicates,
			}); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return bperrors.Wrap(bperrors.Storage, err)
	}
	return nil
}

type pendingFinding struct {
	raw        tagcatalog.RawFinding
	artifactID *int64
}

func toPending(raw []tagcatalog.RawFinding, artifactID *int64) []pendingFinding {
	out := make([]pendingFinding, len(raw))
	for i, r := range raw {
		out[i] = pendingFinding{raw: r, artifactID: artifactID}
	}
	return out
}
