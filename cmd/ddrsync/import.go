package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/batch"
	"github.com/ddrkit/ddrsync/internal/changelog"
	"github.com/ddrkit/ddrsync/internal/index"
	"github.com/ddrkit/ddrsync/internal/lock"
	"github.com/ddrkit/ddrsync/internal/manifest"
	"github.com/ddrkit/ddrsync/internal/record"
	"github.com/ddrkit/ddrsync/internal/ui"
	"github.com/ddrkit/ddrsync/internal/vcs"
)

var importCmd = &cobra.Command{
	Use:     "import TABLE",
	GroupID: "batch",
	Short:   "Apply a CSV table to the records of one kind",
	Long: `Import a CSV table: one record is updated or created per data row.

The header is checked against the kind's schema first; unknown, duplicate
or missing required columns abort the import before anything is written.
The repository lock is then taken for the whole batch. Rows missing a
required value are skipped, rows that fail are reported, and the batch
continues. Payload checksums are recomputed for records whose files
changed.

With --commit the saved records and their changelogs are committed to
git or jj before the lock is released.

Exit status is non-zero when a row failed or the batch was aborted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind := parseKind(cmd)
		im := newImporter(cmd, kind)

		report, err := im.Import(cmd.Context(), args[0], kind)
		if report != nil && len(report.Outcomes) > 0 {
			ui.Report(os.Stdout, report, verbose)
		}
		if report != nil && len(report.Saved) > 0 {
			reindex(context.WithoutCancel(cmd.Context()), report.Saved)
		}
		if err != nil {
			var conflict *lock.LockConflictError
			if errors.As(err, &conflict) {
				fatalf("%v since %s; nothing was imported",
					conflict, conflict.Holder.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			fatalf("import aborted: %v", err)
		}
		if report.Failed() {
			closeLog()
			os.Exit(1)
		}
	},
}

var checkCmd = &cobra.Command{
	Use:     "check TABLE",
	GroupID: "batch",
	Short:   "Validate a CSV table without writing anything",
	Long: `Check runs the header and row validation of an import and shows what
each row would do. It takes no lock and writes nothing; payload checksums
are not recomputed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind := parseKind(cmd)
		im := newImporter(cmd, kind)

		report, err := im.Check(cmd.Context(), args[0], kind)
		if err != nil {
			fatalf("%v", err)
		}
		ui.Report(os.Stdout, report, verbose)
		if report.Failed() {
			closeLog()
			os.Exit(1)
		}
	},
}

func init() {
	importCmd.Flags().StringP("kind", "k", "entity", "record kind: collection, entity or file")
	importCmd.Flags().String("owner", "", "lock owner token (default: config lock.owner or a fresh token)")
	importCmd.Flags().Bool("commit", false, "commit saved records to version control (default: config commit.enabled)")
	rootCmd.AddCommand(importCmd)

	checkCmd.Flags().StringP("kind", "k", "entity", "record kind: collection, entity or file")
	rootCmd.AddCommand(checkCmd)
}

func newImporter(cmd *cobra.Command, kind record.Kind) *batch.Importer {
	registry, err := cfg.Registry()
	if err != nil {
		fatalf("%v", err)
	}
	dialect, err := cfg.Dialect()
	if err != nil {
		fatalf("%v", err)
	}
	builder, err := manifest.NewBuilder(cfg.ManifestOptions(logger.Named("manifest")))
	if err != nil {
		fatalf("%v", err)
	}

	fs := store()
	log := logger.Named("import")
	im := &batch.Importer{
		Store:     fs,
		Registry:  registry,
		Dialect:   dialect,
		Lock:      lock.New(cfg.Repo, logger.Named("lock")),
		Owner:     cfg.Lock.Owner,
		Manifests: builder,
		Changelog: changelog.NewFileSink(func(id string) (string, error) {
			return fs.Dir(kind, id)
		}, cfg.Changelog.User),
		Logger: log,
	}
	if owner, _ := cmd.Flags().GetString("owner"); owner != "" {
		im.Owner = owner
	}

	commit := cfg.Commit.Enabled
	if cmd.Flags().Changed("commit") {
		commit, _ = cmd.Flags().GetBool("commit")
	}
	if commit {
		v, err := vcs.Open(cfg.Repo)
		if err != nil {
			fatalf("--commit: %v", err)
		}
		im.BeforeRelease = batch.CommitHook(v, fs, log)
	}
	return im
}

// reindex refreshes the index entries of saved records when an index
// exists. Failures only leave the index stale.
func reindex(ctx context.Context, saved []batch.Ref) {
	if _, err := os.Stat(cfg.IndexPath()); err != nil {
		return
	}
	db, err := index.Open(cfg.IndexPath(), logger.Named("index"))
	if err != nil {
		logger.Warn("index not updated", zap.Error(err))
		return
	}
	defer func() { _ = db.Close() }()

	s := index.NewSyncer(db, store(), logger.Named("index"))
	for _, ref := range saved {
		if err := s.SyncRecord(ctx, ref.Kind, ref.ID); err != nil {
			logger.Warn("index not updated", zap.String("id", ref.ID), zap.Error(err))
		}
	}
	if verbose {
		fmt.Printf("%s Index updated for %d records\n", ui.RenderMuted("·"), len(saved))
	}
}
