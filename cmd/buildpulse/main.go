// Command buildpulse is BuildPulse's single CLI entry point: it loads a
// TOML config, pulls any new Project → Job → Build → Run → Artifact state
// from the CI server, classifies failures against the tag catalog,
// clusters similar findings, and prints (and optionally writes) a report.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthci/buildpulse/internal/bperrors"
	"github.com/hearthci/buildpulse/internal/ciserver"
	"github.com/hearthci/buildpulse/internal/clusterer"
	"github.com/hearthci/buildpulse/internal/config"
	"github.com/hearthci/buildpulse/internal/logging"
	"github.com/hearthci/buildpulse/internal/parser"
	"github.com/hearthci/buildpulse/internal/puller"
	"github.com/hearthci/buildpulse/internal/report"
	"github.com/hearthci/buildpulse/internal/storage"
	"github.com/hearthci/buildpulse/internal/storage/migrations"
	"github.com/hearthci/buildpulse/internal/storagekernel"
	"github.com/hearthci/buildpulse/internal/tagcatalog"
)

var (
	output     string
	purgeCache bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buildpulse [config.toml]",
		Short: "Incrementally mirror and classify a CI matrix project's failures",
		Long: `buildpulse mirrors a Jenkins-style matrix project's builds into a local
cache, classifies console/artifact text against a regex tag catalog,
clusters textually similar findings, and prints a summary.

Run it again and again: already-cached jobs/builds/runs/artifacts are
skipped, and only newly-seen or changed state triggers work.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the HTML report here (omit flag = no report, empty value = stdout)")
	cmd.Flags().BoolVarP(&purgeCache, "purge-cache", "p", false, "purge every cached row before running")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	path := "config.toml"
	if len(args) == 1 {
		path = args[0]
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{})
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	k, err := storagekernel.Open(ctx, cfg.Database, migrations.Apply)
	if err != nil {
		return bperrors.Wrap(bperrors.Storage, err)
	}
	defer func() { _ = k.Close() }()

	if purgeCache {
		if _, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (struct{}, error) {
			return struct{}{}, storage.PurgeAll(ctx, conn)
		}); err != nil {
			return bperrors.Wrap(bperrors.Storage, err)
		}
		logger.Info("purged cache")
	}

	catalog, err := tagcatalog.Build(cfg.TagsAsTypes())
	if err != nil {
		return bperrors.Wrap(bperrors.Configuration, err)
	}

	if _, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (struct{}, error) {
		for _, tag := range catalog.Tags() {
			if _, err := storage.UpsertTag(ctx, conn, tag); err != nil {
				return struct{}{}, err
			}
		}
		invalidated, err := storage.InvalidateRunsWithDifferentSchema(ctx, conn, catalog.Fingerprint())
		if err != nil {
			return struct{}{}, err
		}
		if invalidated > 0 {
			logger.Info("catalog changed, invalidated stale findings", "runs", invalidated)
		}
		orphaned, err := storage.DeleteOrphanTags(ctx, conn)
		if err != nil {
			return struct{}{}, err
		}
		if orphaned > 0 {
			logger.Debug("removed orphan tags", "count", orphaned)
		}
		return struct{}{}, nil
	}); err != nil {
		return bperrors.Wrap(bperrors.Storage, err)
	}

	srv := ciserver.NewHTTPServer(cfg.JenkinsURL+"/view/"+cfg.Project, cfg.Username, cfg.Password)

	patterns := cfg.ArtifactPatterns()
	rules := make([]puller.ArtifactRule, len(cfg.Artifacts))
	for i, a := range cfg.Artifacts {
		rules[i] = puller.ArtifactRule{Path: patterns[i], PostProcess: a.PostProcess}
	}

	p := &puller.Puller{
		Server: srv,
		Kernel: k,
		Config: puller.Config{
			Blocklist:    cfg.Blocklist,
			LastNHistory: cfg.LastNHistory,
			Artifacts:    rules,
		},
	}
	pullErr := p.Run(ctx)
	if pullErr != nil {
		logger.Error("pull finished with errors", "error", pullErr)
	}

	ps := &parser.Parser{Kernel: k, Catalog: catalog}
	if err := ps.Run(ctx); err != nil {
		logger.Error("parse finished with errors", "error", err)
		if pullErr == nil {
			pullErr = err
		}
	}

	cl := &clusterer.Clusterer{Kernel: k, Threshold: cfg.Threshold}
	if err := cl.Run(ctx); err != nil {
		logger.Error("cluster failed", "error", err)
		if pullErr == nil {
			pullErr = err
		}
	}

	counts, err := storagekernel.Transact(ctx, k, func(ctx context.Context, conn *sql.Conn) (report.Counts, error) {
		return report.Load(ctx, conn)
	})
	if err != nil {
		return bperrors.Wrap(bperrors.Storage, err)
	}
	fmt.Fprint(cmd.OutOrStdout(), report.Render(counts))

	if cmd.Flags().Changed("output") {
		if err := writeReport(cmd, counts, output); err != nil {
			return err
		}
	}

	return pullErr
}

func writeReport(cmd *cobra.Command, counts report.Counts, output string) error {
	if output == "" {
		return report.WriteHTML(cmd.OutOrStdout(), counts)
	}
	f, err := os.Create(output)
	if err != nil {
		return bperrors.Wrap(bperrors.Configuration, fmt.Errorf("opening report output %q: %w", output, err))
	}
	defer func() { _ = f.Close() }()
	return report.WriteHTML(f, counts)
}
