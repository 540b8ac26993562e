package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	var recursive bool
	var parallel bool
	var workers int
	var purge bool

	cmd := &cobra.Command{
		Use:   "refresh [directories...]",
		Short: "Synchronize the index with the directories",
		Long: `Rescan the given directories (default: the current directory) and
apply only what changed: new files are added, modified files are
reindexed, and vanished files are marked deleted. Unchanged files are
not touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd, args, recursive, parallel, workers, purge)
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "Descend into subdirectories")
	cmd.Flags().BoolVarP(&parallel, "parallel", "p", false, "Parse files with a worker pool")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (default: CPU count)")
	cmd.Flags().BoolVar(&purge, "purge", false, "Remove vanished files instead of marking them deleted")

	return cmd
}

func runRefresh(cmd *cobra.Command, args []string, recursive, parallel bool, workers int, purge bool) error {
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
	ix.PurgeDeleted = purge
	progress := newProgressRenderer(cmd)

	stats, err := ix.RefreshIndex(cmd.Context(), dirs, recursive, parallel, progress.update)
	progress.done()
	if err != nil {
		return err
	}

	syncLibraryStats(reg, lib, st, cmd)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Refreshed %q in %s: %d added, %d updated, %d deleted, %d unchanged\n",
		lib.Name, formatDuration(stats.Elapsed),
		stats.AddedFiles, stats.UpdatedFiles, stats.DeletedFiles, stats.SkippedFiles)
	if stats.FailedFiles > 0 {
		fmt.Fprintf(out, "  failed: %d\n", stats.FailedFiles)
		for _, msg := range stats.Errors {
			fmt.Fprintf(out, "    %s\n", msg)
		}
	}
	return nil
}
