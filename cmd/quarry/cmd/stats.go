package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// StatsOutput is the JSON output format for library statistics.
type StatsOutput struct {
	Library           string                   `json:"library"`
	TotalDocuments    int                      `json:"total_documents"`
	DeletedDocuments  int                      `json:"deleted_documents"`
	TotalSizeBytes    int64                    `json:"total_size_bytes"`
	DatabaseSizeBytes int64                    `json:"database_size_bytes"`
	FileTypes         map[string]FileTypeStats `json:"file_types"`
}

// FileTypeStats is the per-type slice of StatsOutput.
type FileTypeStats struct {
	Count      int     `json:"count"`
	TotalBytes int64   `json:"total_bytes"`
	AvgBytes   int64   `json:"avg_bytes"`
	Percent    float64 `json:"percent"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics for the selected library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, jsonOutput bool) error {
	reg := openRegistry()
	st, lib, err := openLibraryStore(reg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	stats, err := st.Statistics(cmd.Context())
	if err != nil {
		return err
	}
	breakdown, err := st.FileTypeBreakdown(cmd.Context())
	if err != nil {
		return err
	}

	types := make([]string, 0, len(breakdown))
	for ft := range breakdown {
		types = append(types, ft)
	}
	sort.Strings(types)

	if jsonOutput {
		fileTypes := make(map[string]FileTypeStats, len(breakdown))
		for ft, b := range breakdown {
			fileTypes[ft] = FileTypeStats{
				Count:      b.Count,
				TotalBytes: b.TotalBytes,
				AvgBytes:   b.AvgBytes,
				Percent:    b.Percent,
			}
		}
		out := StatsOutput{
			Library:           lib.Name,
			TotalDocuments:    stats.TotalDocuments,
			DeletedDocuments:  stats.DeletedDocuments,
			TotalSizeBytes:    stats.TotalSizeBytes,
			DatabaseSizeBytes: stats.DatabaseSizeBytes,
			FileTypes:         fileTypes,
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Library:   %s\n", lib.Name)
	fmt.Fprintf(out, "Store:     %s (%s)\n", lib.StoragePath, formatBytes(stats.DatabaseSizeBytes))
	fmt.Fprintf(out, "Documents: %d active, %d deleted\n", stats.TotalDocuments, stats.DeletedDocuments)
	fmt.Fprintf(out, "Content:   %s\n", formatBytes(stats.TotalSizeBytes))

	if len(types) > 0 {
		fmt.Fprintln(out, "\nFile types:")
		w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
		fmt.Fprintf(w, "  type\tcount\ttotal\tavg\tshare\n")
		for _, ft := range types {
			b := breakdown[ft]
			fmt.Fprintf(w, "  %s\t%d\t%s\t%s\t%.1f%%\n",
				ft, b.Count, formatBytes(b.TotalBytes), formatBytes(b.AvgBytes), b.Percent)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}
