package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ddrkit/ddrsync/internal/index"
	"github.com/ddrkit/ddrsync/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:     "index",
	GroupID: "repo",
	Short:   "Manage the record index",
	Long: `The index is a SQLite cache (.ddrsync/index.db) of every record
document and its manifest. It lets export --all and manifest verify work
without scanning the repository. The record files stay authoritative.`,
}

var indexSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Index every record document in the repository",
	Run: func(cmd *cobra.Command, args []string) {
		db := openIndex(cmd)
		defer func() { _ = db.Close() }()

		fmt.Printf("%s Indexing %s...\n", ui.RenderAccent("→"), cfg.Repo)
		start := time.Now()
		st, err := index.NewSyncer(db, store(), logger.Named("index")).FullSync(cmd.Context())
		if err != nil {
			fatalf("index sync failed: %v", err)
		}

		mark := ui.RenderPass("✓")
		if st.Failed > 0 {
			mark = ui.RenderWarn("⚠")
		}
		fmt.Printf("%s Sync complete in %v\n", mark, time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Synced:  %d\n", st.Synced)
		fmt.Printf("   Failed:  %d\n", st.Failed)
		fmt.Printf("   Removed: %d\n", st.Removed)
	},
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index location and record counts",
	Run: func(cmd *cobra.Command, args []string) {
		path := cfg.IndexPath()
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			fmt.Printf("%s Index not built\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'ddrsync index sync' to create it\n")
			return
		}
		if err != nil {
			fatalf("%v", err)
		}

		db := openIndex(cmd)
		defer func() { _ = db.Close() }()
		counts, err := db.Count(cmd.Context())
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s\n", ui.RenderHeader("Index"))
		fmt.Printf("Location: %s\n", path)
		fmt.Printf("Size:     %s\n", humanSize(info.Size()))
		fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
		kinds := make([]string, 0, len(counts))
		byName := make(map[string]int, len(counts))
		for k, n := range counts {
			kinds = append(kinds, k.String())
			byName[k.String()] = n
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Printf("%-10s %d\n", k+":", byName[k])
		}
	},
}

var indexWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index current while record files change (foreground)",
	Run: func(cmd *cobra.Command, args []string) {
		db := openIndex(cmd)
		defer func() { _ = db.Close() }()

		s := index.NewSyncer(db, store(), logger.Named("index"))
		if _, err := s.FullSync(cmd.Context()); err != nil {
			fatalf("initial sync failed: %v", err)
		}
		debounce, _ := cmd.Flags().GetDuration("debounce")
		w, err := index.NewWatcher(s, debounce)
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Watching %s\n", ui.RenderAccent("→"), cfg.Repo)
		fmt.Printf("   Index: %s\n", db.Path())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")
		if err := w.Run(cmd.Context()); err != nil {
			fatalf("watcher stopped: %v", err)
		}
	},
}

func init() {
	indexWatchCmd.Flags().Duration("debounce", index.DefaultDebounce, "quiet period before a changed file is re-indexed")
	indexCmd.AddCommand(indexSyncCmd, indexStatusCmd, indexWatchCmd)
	rootCmd.AddCommand(indexCmd)
}

func openIndex(cmd *cobra.Command) *index.DB {
	path := cfg.IndexPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fatalf("%v", err)
	}
	db, err := index.Open(path, logger.Named("index"))
	if err != nil {
		fatalf("%v", err)
	}
	if err := db.InitSchema(cmd.Context()); err != nil {
		_ = db.Close()
		fatalf("%v", err)
	}
	return db
}

func humanSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
