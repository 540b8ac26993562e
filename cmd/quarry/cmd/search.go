package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrysearch/quarry/internal/search"
	"github.com/quarrysearch/quarry/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		mode       string
		fileTypes  []string
		limit      int
		page       int
		allLibs    bool
		sortField  string
		descending bool
		jsonOutput bool
		after      string
		before     string
		minSize    int64
		maxSize    int64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Run a ranked full-text search over the selected library.

Fuzzy mode (the default) matches word prefixes; exact mode matches the
query as a phrase. Use --all to search every enabled library at once.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := search.Request{
				Query:     strings.Join(args, " "),
				Mode:      mode,
				FileTypes: fileTypes,
				Limit:     limit,
				MinSize:   minSize,
				MaxSize:   maxSize,
			}
			if page > 1 {
				if limit <= 0 {
					req.Limit = search.DefaultLimit
				}
				req.Offset = (page - 1) * req.Limit
			}

			var err error
			if req.ModifiedAfter, err = parseDate(after); err != nil {
				return err
			}
			if req.ModifiedBefore, err = parseDate(before); err != nil {
				return err
			}

			return runSearch(cmd, req, allLibs, sortField, descending, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", search.ModeFuzzy, "Search mode: fuzzy or exact")
	cmd.Flags().StringSliceVarP(&fileTypes, "type", "t", nil, "Restrict to file types (e.g. .txt,.md)")
	cmd.Flags().IntVarP(&limit, "limit", "n", search.DefaultLimit, "Results per page")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().BoolVarP(&allLibs, "all", "a", false, "Search all enabled libraries")
	cmd.Flags().StringVar(&sortField, "sort", "", "Sort results by: rank, name, path, size, modified")
	cmd.Flags().BoolVar(&descending, "desc", false, "Sort in descending order")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&after, "after", "", "Only files modified after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&before, "before", "", "Only files modified before this date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&minSize, "min-size", 0, "Minimum file size in bytes")
	cmd.Flags().Int64Var(&maxSize, "max-size", 0, "Maximum file size in bytes")

	return cmd
}

func runSearch(cmd *cobra.Command, req search.Request, allLibs bool, sortField string, descending, jsonOutput bool) error {
	reg := openRegistry()

	var resp *search.Response
	if allLibs {
		enabled, err := reg.Enabled()
		if err != nil {
			return err
		}
		if len(enabled) == 0 {
			return fmt.Errorf("no enabled libraries to search")
		}

		var sources []search.Source
		for _, lib := range enabled {
			st, err := store.Open(lib.StoragePath, logger)
			if err != nil {
				logger.Warn("skipping unopenable library",
					"library", lib.Name, "error", err.Error())
				continue
			}
			defer func() { _ = st.Close() }()
			sources = append(sources, search.Source{Name: lib.Name, Store: st})
		}

		resp, err = search.SearchAll(cmd.Context(), sources, req, logger)
		if err != nil {
			return err
		}
	} else {
		st, _, err := openLibraryStore(reg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		engine, err := search.NewEngine(st, cfg.Search.CacheSize, logger)
		if err != nil {
			return err
		}

		if advancedFilters(req) {
			resp, err = engine.AdvancedSearch(cmd.Context(), req)
		} else {
			resp, err = engine.Search(cmd.Context(), req)
		}
		if err != nil {
			return err
		}
	}

	if sortField != "" {
		if err := search.Sort(resp.Results, sortField, descending); err != nil {
			return err
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResults(cmd, resp)
	return nil
}

func advancedFilters(req search.Request) bool {
	return !req.ModifiedAfter.IsZero() || !req.ModifiedBefore.IsZero() ||
		req.MinSize > 0 || req.MaxSize > 0
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

func printResults(cmd *cobra.Command, resp *search.Response) {
	out := cmd.OutOrStdout()

	if resp.Total == 0 {
		fmt.Fprintf(out, "No results for %q\n", resp.Query)
		return
	}

	fmt.Fprintf(out, "%d results for %q (page %d of %d, %s)\n\n",
		resp.Total, resp.Query, resp.Page, resp.TotalPages, formatDuration(resp.Elapsed))

	for i, r := range resp.Results {
		n := resp.Offset + i + 1
		if r.Library != "" {
			fmt.Fprintf(out, "%3d. [%s] %s\n", n, r.Library, r.FilePath)
		} else {
			fmt.Fprintf(out, "%3d. %s\n", n, r.FilePath)
		}
		if snippet := cleanSnippet(r.Snippet); snippet != "" {
			fmt.Fprintf(out, "     %s\n", snippet)
		}
	}
}

// cleanSnippet flattens a snippet to one line for terminal display.
func cleanSnippet(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.Join(strings.Fields(s), " ")
}
