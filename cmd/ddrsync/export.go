package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/batch"
	"github.com/ddrkit/ddrsync/internal/index"
	"github.com/ddrkit/ddrsync/internal/record"
	"github.com/ddrkit/ddrsync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [ID...]",
	GroupID: "batch",
	Short:   "Write records of one kind to a CSV table",
	Long: `Export records of one kind to a CSV table, one row per record in
natural identifier order.

Identifiers come from the arguments, from --ids-file (one per line, #
comments allowed), or from --all, which lists every record of the kind
(optionally below --parent) through the index when it exists and by
scanning the repository otherwise.

When -o names a directory the table is written there as
<kind>-YYYYMMDD-HHMMSS.csv.`,
	Run: func(cmd *cobra.Command, args []string) {
		kind := parseKind(cmd)
		requiredOnly, _ := cmd.Flags().GetBool("required-only")
		all, _ := cmd.Flags().GetBool("all")
		parent, _ := cmd.Flags().GetString("parent")
		idsFile, _ := cmd.Flags().GetString("ids-file")
		out, _ := cmd.Flags().GetString("output")

		ids := append([]string(nil), args...)
		if idsFile != "" {
			more, err := readIDs(idsFile)
			if err != nil {
				fatalf("%v", err)
			}
			ids = append(ids, more...)
		}
		if all {
			listed, err := listIDs(cmd.Context(), kind, parent)
			if err != nil {
				fatalf("%v", err)
			}
			ids = append(ids, listed...)
		}
		if len(ids) == 0 {
			fatalf("no identifiers given (pass IDs, --ids-file or --all)")
		}

		registry, err := cfg.Registry()
		if err != nil {
			fatalf("%v", err)
		}
		dialect, err := cfg.Dialect()
		if err != nil {
			fatalf("%v", err)
		}

		exp := batch.NewExporter(store(), registry, logger.Named("export"))
		exp.Dialect = dialect
		path, err := exp.Export(cmd.Context(), ids, kind, out, requiredOnly)
		if err != nil {
			fatalf("export failed: %v", err)
		}

		fmt.Printf("%s Exported %d %s records to %s\n", ui.RenderPass("✓"), countUnique(ids), kind, path)
		if verbose {
			ui.Timings(os.Stdout, exp.Timer())
		}
	},
}

func init() {
	exportCmd.Flags().StringP("kind", "k", "entity", "record kind: collection, entity or file")
	exportCmd.Flags().Bool("required-only", false, "export only required columns")
	exportCmd.Flags().Bool("all", false, "export every record of the kind")
	exportCmd.Flags().String("parent", "", "with --all, only records below this collection or entity")
	exportCmd.Flags().String("ids-file", "", "read identifiers from this file")
	exportCmd.Flags().StringP("output", "o", ".", "output file or directory")
	rootCmd.AddCommand(exportCmd)
}

func readIDs(path string) ([]string, error) {
	// #nosec G304 - path supplied by the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ids file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ids file: %w", err)
	}
	return ids, nil
}

// listIDs lists records of kind, from the index when one has been built.
func listIDs(ctx context.Context, kind record.Kind, parent string) ([]string, error) {
	if _, err := os.Stat(cfg.IndexPath()); err == nil {
		db, err := index.Open(cfg.IndexPath(), logger.Named("index"))
		if err == nil {
			defer func() { _ = db.Close() }()
			ids, err := db.IDs(ctx, kind, parent)
			if err == nil {
				return ids, nil
			}
			logger.Warn("index lookup failed, scanning repository", zap.Error(err))
		}
	}

	ids, err := store().IDs(ctx, kind)
	if err != nil || parent == "" {
		return ids, err
	}
	var out []string
	for _, id := range ids {
		if index.ParentOf(kind, id) == parent {
			out = append(out, id)
		}
	}
	return out, nil
}

func countUnique(ids []string) int {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[strings.TrimSpace(id)] = true
	}
	return len(seen)
}
