// Package cmd provides the CLI commands for Quarry.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/config"
	"github.com/quarrysearch/quarry/internal/index"
	"github.com/quarrysearch/quarry/internal/library"
	"github.com/quarrysearch/quarry/internal/logging"
	"github.com/quarrysearch/quarry/internal/parser"
	"github.com/quarrysearch/quarry/internal/pipeline"
	"github.com/quarrysearch/quarry/internal/scanner"
	"github.com/quarrysearch/quarry/internal/store"
	"github.com/quarrysearch/quarry/pkg/version"
)

var (
	configPath  string
	libraryName string
	debugMode   bool

	cfg            *config.Config
	logger         *slog.Logger
	loggingCleanup func()
)

// NewRootCmd creates the root command for the quarry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "Local full-text file indexing and search",
		Long: `Quarry indexes the text files in your directories into SQLite FTS5
libraries and searches them with ranked, snippeted results.

Index a directory with 'quarry index', keep it current with
'quarry refresh', and query it with 'quarry search'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("quarry version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(),
		"Path to the config file")
	cmd.PersistentFlags().StringVarP(&libraryName, "library", "l", "",
		"Library to operate on (default: the registry default)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Enable debug logging")

	cmd.PersistentPreRunE = setup
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newLibraryCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newMaintainCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and installs logging before any command runs.
func setup(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	if debugMode {
		logCfg.Level = "debug"
	}
	// Keep stderr clean for command output; logs go to the file.
	logCfg.WriteToStderr = false

	logger, loggingCleanup, err = logging.Setup(logCfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".quarry", "config.yaml")
}

// openRegistry returns the library registry.
func openRegistry() *library.Registry {
	return library.NewRegistry(library.DefaultManifestPath(), logger)
}

// resolveLibrary picks the library named by --library, falling back to
// the registry default.
func resolveLibrary(reg *library.Registry) (*library.Library, error) {
	if libraryName != "" {
		return reg.Get(libraryName)
	}
	lib, err := reg.Default()
	if err != nil {
		return nil, fmt.Errorf("no library selected: %w (create one with 'quarry library add')", err)
	}
	return lib, nil
}

// openLibraryStore opens the document store for the selected library.
func openLibraryStore(reg *library.Registry) (*store.Store, *library.Library, error) {
	lib, err := resolveLibrary(reg)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(lib.StoragePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return st, lib, nil
}

// newIndexer assembles the scan/parse/store pipeline from config.
func newIndexer(st *store.Store, workers int) *index.Indexer {
	registry := parser.DefaultRegistry()
	sc := scanner.New(scanner.Policy{
		MaxFileSize:        cfg.MaxFileSize(),
		ExcludedExtensions: cfg.Indexing.ExcludedExtensions,
		ExcludedPaths:      cfg.Indexing.ExcludedPaths,
		Supports:           registry.Supports,
	}, logger)

	if workers <= 0 {
		workers = cfg.EffectiveWorkers()
	}
	pl := pipeline.New(registry, workers, cfg.Indexing.ParseTimeout, logger)
	return index.New(sc, pl, st, cfg.Indexing.BatchSize, logger)
}

// syncLibraryStats refreshes the registry's cached counters for lib.
func syncLibraryStats(reg *library.Registry, lib *library.Library, st *store.Store, cmd *cobra.Command) {
	stats, err := st.Statistics(cmd.Context())
	if err != nil {
		logger.Warn("library stats refresh failed",
			slog.String("library", lib.Name),
			slog.String("error", err.Error()))
		return
	}
	if err := reg.UpdateStats(lib.Name, stats.TotalDocuments, stats.DatabaseSizeBytes); err != nil {
		logger.Warn("library stats update failed",
			slog.String("library", lib.Name),
			slog.String("error", err.Error()))
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// formatBytes renders a byte count for humans.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatDuration trims a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}
