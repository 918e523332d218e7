// Command ddrsync exports archival records to tables and imports edited
// tables back, under a repository lock.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/config"
	"github.com/ddrkit/ddrsync/internal/logging"
	"github.com/ddrkit/ddrsync/internal/record"
	"github.com/ddrkit/ddrsync/internal/ui"

	_ "github.com/ddrkit/ddrsync/internal/vcs/git"
	_ "github.com/ddrkit/ddrsync/internal/vcs/jj"
)

var (
	settings   = config.New()
	cfg        *config.Config
	logger     = zap.NewNop()
	closeLog   = func() {}
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ddrsync",
	Short: "Batch metadata sync between archival records and CSV tables",
	Long: `ddrsync exports collection, entity and file records of a repository
to CSV tables and imports edited tables back.

Imports run under a repository lock, validate the header against the
kind's schema before touching anything, and recompute payload checksums
when files changed.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return
		}
		var err error
		cfg, err = config.Load(settings, configFile)
		if err != nil {
			fatalf("%v", err)
		}
		if abs, err := filepath.Abs(cfg.Repo); err == nil {
			cfg.Repo = abs
		}
		logger, closeLog, err = logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
		if err != nil {
			fatalf("%v", err)
		}
		if cfg.Used != "" {
			logger.Debug("using config file", zap.String("path", cfg.Used))
		}
		ui.SetOutput(os.Stdout)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "batch", Title: "Batch commands:"},
		&cobra.Group{ID: "repo", Title: "Repository commands:"},
	)

	f := rootCmd.PersistentFlags()
	f.StringVar(&configFile, "config", "", "config file (default .ddrsync.yaml in the repository)")
	f.StringP("repo", "r", ".", "repository root")
	f.String("log-level", "info", "log level: debug, info, warn, error or none")
	f.String("log-file", "", "write JSON logs to this file, rotated")
	f.String("delimiter", ",", "table field delimiter")
	f.String("quotechar", `"`, "table quote character")
	f.String("schema", "", "schema file (.yaml or .toml)")
	f.BoolVarP(&verbose, "verbose", "v", false, "print every row and step timings")

	for key, flag := range map[string]string{
		"repo":        "repo",
		"log.level":   "log-level",
		"log.file":    "log-file",
		"delimiter":   "delimiter",
		"quotechar":   "quotechar",
		"schema.file": "schema",
	} {
		_ = settings.BindPFlag(key, f.Lookup(flag))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

// fatalf prints an error and exits non-zero.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("Error:"), fmt.Sprintf(format, args...))
	closeLog()
	os.Exit(1)
}

func parseKind(cmd *cobra.Command) record.Kind {
	s, _ := cmd.Flags().GetString("kind")
	kind, err := record.ParseKind(s)
	if err != nil {
		fatalf("%v", err)
	}
	return kind
}

func store() *record.FSStore {
	return record.NewFSStore(cfg.Repo)
}
