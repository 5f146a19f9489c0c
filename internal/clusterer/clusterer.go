// Package clusterer wires the Similarity Engine's pure clustering algorithm
// (internal/similarity) to the cache: it resolves each non-metadata
// Finding's snippet text, runs single-link clustering, and persists the
// resulting group assignments.
package clusterer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hearthci/buildpulse/internal/bperrors"
	"github.com/hearthci/buildpulse/internal/similarity"
	"github.com/hearthci/buildpulse/internal/storage"
	"github.com/hearthci/buildpulse/internal/storagekernel"
	"github.com/hearthci/buildpulse/internal/types"
)

// Clusterer re-derives every Similarity row from scratch on each run: there
// is no incremental update, since a single new finding can merge two
// previously-separate groups.
type Clusterer struct {
	Kernel    *storagekernel.Kernel
	Threshold float64
}

// Run resolves every non-metadata finding's snippet, clusters them, and
// replaces the similarities table with the fresh assignment.
func (c *Clusterer) Run(ctx context.Context) error {
	_, err := storagekernel.Transact(ctx, c.Kernel, func(ctx context.Context, conn *sql.Conn) (struct{}, error) {
		findings, err := storage.NonMetadataFindings(ctx, conn)
		if err != nil {
			return struct{}{}, err
		}

		candidates := make([]similarity.Candidate, 0, len(findings))
		runCache := make(map[int64]types.Run)
		artifactCache := make(map[int64]types.Artifact)
		tagCache := make(map[int64]types.Tag)

		for _, f := range findings {
			tag, ok := tagCache[f.Value.TagID]
			if !ok {
				row, found, err := storage.Tags.SelectOne(ctx, conn, f.Value.TagID)
				if err != nil {
					return struct{}{}, err
				}
				if !found {
					continue
				}
				tag = row.Value
				tagCache[f.Value.TagID] = tag
			}

			snippet, err := resolveSnippet(ctx, conn, tag, f.Value, runCache, artifactCache)
			if err != nil {
				return struct{}{}, err
			}
			if snippet == "" && f.Value.SnippetStart == f.Value.SnippetEnd {
				continue
			}
			candidates = append(candidates, similarity.Candidate{FindingID: f.ID, Snippet: snippet})
		}

		if err := storage.DeleteAllSimilarities(ctx, conn); err != nil {
			return struct{}{}, err
		}

		assignments := similarity.Cluster(candidates, c.Threshold)
		for findingID, hash := range assignments {
			if err := storage.InsertSimilarity(ctx, conn, hash, findingID); err != nil {
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

func resolveSnippet(
	ctx context.Context,
	conn *sql.Conn,
	tag types.Tag,
	f types.Finding,
	runCache map[int64]types.Run,
	artifactCache map[int64]types.Artifact,
) (string, error) {
	switch tag.From {
	case types.FromRunName:
		run, err := loadRun(ctx, conn, f.RunID, runCache)
		if err != nil {
			return "", err
		}
		return slice(run.DisplayName, f), nil
	case types.FromConsole:
		run, err := loadRun(ctx, conn, f.RunID, runCache)
		if err != nil {
			return "", err
		}
		if run.Log == nil {
			return "", nil
		}
		return slice(*run.Log, f), nil
	case types.FromArtifact:
		if f.ArtifactID == nil {
			return "", fmt.Errorf("clusterer: finding id referencing artifact-from tag %q has no artifact_id", tag.Name)
		}
		artifact, err := loadArtifact(ctx, conn, *f.ArtifactID, artifactCache)
		if err != nil {
			return "", err
		}
		return slice(string(artifact.Contents), f), nil
	default:
		return "", fmt.Errorf("clusterer: tag %q has invalid from %q", tag.Name, tag.From)
	}
}

func loadRun(ctx context.Context, conn *sql.Conn, runID int64, cache map[int64]types.Run) (types.Run, error) {
	if r, ok := cache[runID]; ok {
		return r, nil
	}
	row, _, err := storage.Runs.SelectOne(ctx, conn, runID)
	if err != nil {
		return types.Run{}, err
	}
	cache[runID] = row.Value
	return row.Value, nil
}

func loadArtifact(ctx context.Context, conn *sql.Conn, artifactID int64, cache map[int64]types.Artifact) (types.Artifact, error) {
	if a, ok := cache[artifactID]; ok {
		return a, nil
	}
	row, _, err := storage.Artifacts.SelectOne(ctx, conn, artifactID)
	if err != nil {
		return types.Artifact{}, err
	}
	cache[artifactID] = row.Value
	return row.Value, nil
}

func slice(text string, f types.Finding) string {
	if f.SnippetStart < 0 || f.SnippetEnd > int64(len(text)) || f.SnippetStart > f.SnippetEnd {
		return ""
	}
	return text[f.SnippetStart:f.SnippetEnd]
}
