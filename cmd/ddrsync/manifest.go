package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/changelog"
	"github.com/ddrkit/ddrsync/internal/index"
	"github.com/ddrkit/ddrsync/internal/lock"
	"github.com/ddrkit/ddrsync/internal/manifest"
	"github.com/ddrkit/ddrsync/internal/record"
	"github.com/ddrkit/ddrsync/internal/ui"
)

var manifestCmd = &cobra.Command{
	Use:     "manifest",
	GroupID: "repo",
	Short:   "Build or verify payload checksum manifests",
}

var manifestBuildCmd = &cobra.Command{
	Use:   "build ID",
	Short: "Recompute and store the manifest of one record",
	Long: `Hash every payload file of an entity or file record and store the
result in the record's "files" field. The record is only written when the
manifest changed, under the repository lock. With --dry-run the manifest
is printed instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		kind := parseKind(cmd)
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		id := args[0]

		fs := store()
		if dryRun {
			r, err := fs.Load(ctx, kind, id)
			if err != nil {
				fatalf("%v", err)
			}
			data, err := buildManifest(ctx, fs, r).MarshalIndent()
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Println(string(data))
			return
		}

		owner := cfg.Lock.Owner
		if owner == "" {
			owner = lock.NewOwner()
		}
		m, changed, err := rebuildManifest(ctx, fs, lock.New(cfg.Repo, logger.Named("lock")), owner, kind, id)
		if err != nil {
			fatalf("%v", err)
		}
		if !changed {
			fmt.Printf("%s %s manifest is current (%d files)\n", ui.RenderPass("✓"), id, len(m))
			return
		}
		fmt.Printf("%s %s manifest updated (%d files)\n", ui.RenderPass("✓"), id, len(m))
	},
}

var manifestVerifyCmd = &cobra.Command{
	Use:   "verify ID",
	Short: "Compare a record's manifest with its payload files",
	Long: `Rehash the payload files of a record and compare them with the stored
manifest. The indexed manifest is used when the index has the record,
the record document otherwise. Exit status is non-zero on any difference.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		kind := parseKind(cmd)
		id := args[0]
		fs := store()

		diffs, source, err := verifyManifest(ctx, fs, kind, id)
		if err != nil {
			fatalf("%v", err)
		}
		if len(diffs) == 0 {
			fmt.Printf("%s %s matches its payload (%s)\n", ui.RenderPass("✓"), id, source)
			return
		}
		fmt.Printf("%s %s differs from its payload (%s):\n", ui.RenderFail("✗"), id, source)
		for _, d := range diffs {
			fmt.Printf("  %s\n", d)
		}
		closeLog()
		os.Exit(1)
	},
}

func init() {
	manifestBuildCmd.Flags().Bool("dry-run", false, "print the manifest without saving")
	for _, c := range []*cobra.Command{manifestBuildCmd, manifestVerifyCmd} {
		c.Flags().StringP("kind", "k", "entity", "record kind: entity or file")
		manifestCmd.AddCommand(c)
	}
	rootCmd.AddCommand(manifestCmd)
}

func newBuilder() *manifest.Builder {
	b, err := manifest.NewBuilder(cfg.ManifestOptions(logger.Named("manifest")))
	if err != nil {
		fatalf("%v", err)
	}
	return b
}

func buildManifest(ctx context.Context, fs *record.FSStore, r *record.Record) manifest.Manifest {
	root, files, err := fs.PayloadFiles(ctx, r)
	if err != nil {
		fatalf("%v", err)
	}
	m, err := newBuilder().Build(ctx, root, files)
	if err != nil {
		fatalf("%v", err)
	}
	return m
}

// rebuildManifest loads a record and rehashes its payload while holding
// the repository lock, saving the record only when the manifest changed.
func rebuildManifest(ctx context.Context, fs *record.FSStore, l *lock.Lock, owner string, kind record.Kind, id string) (m manifest.Manifest, changed bool, err error) {
	if _, err := l.Acquire(owner, "manifest build "+id); err != nil {
		return nil, false, err
	}
	defer func() {
		if _, relErr := l.Release(owner); relErr != nil && err == nil {
			err = relErr
		}
	}()

	r, err := fs.Load(ctx, kind, id)
	if err != nil {
		return nil, false, err
	}
	root, files, err := fs.PayloadFiles(ctx, r)
	if err != nil {
		return nil, false, err
	}
	b, err := manifest.NewBuilder(cfg.ManifestOptions(logger.Named("manifest")))
	if err != nil {
		return nil, false, err
	}
	fresh, err := b.Build(ctx, root, files)
	if err != nil {
		return nil, false, err
	}
	current, err := manifest.FromRecord(r)
	if err != nil {
		return nil, false, err
	}
	if current.Equal(fresh) {
		return fresh, false, nil
	}

	if err := fresh.Attach(r); err != nil {
		return nil, false, err
	}
	if err := fs.Save(ctx, r); err != nil {
		return nil, false, err
	}
	sink := changelog.NewFileSink(func(id string) (string, error) { return fs.Dir(kind, id) }, cfg.Changelog.User)
	if err := sink.Append(id, "Updated "+manifest.Field); err != nil {
		logger.Warn("failed to append changelog", zap.String("id", id), zap.Error(err))
	}
	return fresh, true, nil
}

func verifyManifest(ctx context.Context, fs *record.FSStore, kind record.Kind, id string) ([]manifest.Difference, string, error) {
	if _, err := os.Stat(cfg.IndexPath()); err == nil {
		db, err := index.Open(cfg.IndexPath(), logger.Named("index"))
		if err == nil {
			defer func() { _ = db.Close() }()
			diffs, err := index.Verify(ctx, db, fs, newBuilder(), id)
			if err == nil {
				return diffs, "index", nil
			}
		}
	}

	r, err := fs.Load(ctx, kind, id)
	if err != nil {
		return nil, "", err
	}
	stored, err := manifest.FromRecord(r)
	if err != nil {
		return nil, "", err
	}
	return manifest.Diff(stored, buildManifest(ctx, fs, r)), "record", nil
}
