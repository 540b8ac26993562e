package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/index"
)

func newIndexCmd() *cobra.Command {
	var recursive bool
	var parallel bool
	var workers int

	cmd := &cobra.Command{
		Use:   "index [directories...]",
		Short: "Build the index for one or more directories",
		Long: `Scan the given directories (default: the current directory), parse
every supported file, and store the results in the selected library.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args, recursive, parallel, workers)
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "Descend into subdirectories")
	cmd.Flags().BoolVarP(&parallel, "parallel", "p", false, "Parse files with a worker pool")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (default: CPU count)")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string, recursive, parallel bool, workers int) error {
	dirs, err := resolveDirs(args)
	if err != nil {
		return err
	}

	reg := openRegistry()
	st, lib, err := openLibraryStore(reg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ix := newIndexer(st, workers)
	progress := newProgressRenderer(cmd)

	var stats *index.Stats
	if parallel {
		stats, err = ix.CreateIndexParallel(cmd.Context(), dirs, recursive, progress.update)
	} else {
		stats, err = ix.CreateIndex(cmd.Context(), dirs, recursive, progress.update)
	}
	progress.done()
	if err != nil {
		return err
	}

	syncLibraryStats(reg, lib, st, cmd)
	printIndexStats(cmd, lib.Name, stats)
	return nil
}

// resolveDirs validates directory arguments, defaulting to the cwd.
func resolveDirs(args []string) ([]string, error) {
	if len(args) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return []string{cwd}, nil
	}

	dirs := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("cannot index %s: %w", arg, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("not a directory: %s", arg)
		}
		dirs = append(dirs, abs)
	}
	return dirs, nil
}

func printIndexStats(cmd *cobra.Command, libName string, stats *index.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d of %d files into %q in %s\n",
		stats.IndexedFiles, stats.TotalFiles, libName, formatDuration(stats.Elapsed))
	if stats.SkippedFiles > 0 {
		fmt.Fprintf(out, "  skipped: %d\n", stats.SkippedFiles)
	}
	if stats.TotalSize > 0 {
		fmt.Fprintf(out, "  content: %s\n", formatBytes(stats.TotalSize))
	}
	if stats.FailedFiles > 0 {
		fmt.Fprintf(out, "  failed:  %d\n", stats.FailedFiles)
		for _, msg := range stats.Errors {
			fmt.Fprintf(out, "    %s\n", msg)
		}
	}
}

// progressRenderer draws in-place progress on a terminal and stays
// silent when output is piped.
type progressRenderer struct {
	cmd    *cobra.Command
	active bool
	drawn  bool
}

func newProgressRenderer(cmd *cobra.Command) *progressRenderer {
	f, ok := cmd.OutOrStdout().(*os.File)
	return &progressRenderer{
		cmd:    cmd,
		active: ok && isatty.IsTerminal(f.Fd()),
	}
}

func (p *progressRenderer) update(processed, total int, path string) {
	if !p.active || total == 0 {
		return
	}
	p.drawn = true
	fmt.Fprintf(p.cmd.OutOrStdout(), "\r\033[K[%d/%d] %s", processed, total, filepath.Base(path))
}

func (p *progressRenderer) done() {
	if p.drawn {
		fmt.Fprint(p.cmd.OutOrStdout(), "\r\033[K")
	}
}
