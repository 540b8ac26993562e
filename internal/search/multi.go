package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/quarrysearch/quarry/internal/store"
)

// Source pairs a library name with its searchable store.
type Source struct {
	Name  string
	Store Searcher
}

// SearchAll queries every source and merges the results into a single
// ranking. Each source contributes its full match set before
// pagination, so a strong hit in a small library cannot be crowded out
// by page boundaries. A failing source is logged and skipped; the
// remaining sources still answer.
func SearchAll(ctx context.Context, sources []Source, req Request, logger *slog.Logger) (*Response, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := normalize(&req); err != nil {
		return nil, err
	}

	start := time.Now()
	match := buildMatch(req.Query, req.Mode)
	opts := store.SearchOptions{
		FileTypes:      req.FileTypes,
		ModifiedAfter:  req.ModifiedAfter,
		ModifiedBefore: req.ModifiedBefore,
		MinSize:        req.MinSize,
		MaxSize:        req.MaxSize,
		// Pagination happens after the merge.
		Limit: req.Offset + req.Limit,
	}

	var merged []*Result
	total := 0
	for _, src := range sources {
		count, err := src.Store.CountFTS(ctx, match, opts)
		if err != nil {
			logger.Warn("library search failed",
				slog.String("library", src.Name),
				slog.String("error", err.Error()))
			continue
		}
		rows, err := src.Store.SearchFTS(ctx, match, opts)
		if err != nil {
			logger.Warn("library search failed",
				slog.String("library", src.Name),
				slog.String("error", err.Error()))
			continue
		}
		total += count
		for _, r := range rows {
			merged = append(merged, fromRow(r, src.Name))
		}
	}

	// bm25 ascending: most relevant first regardless of source.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Rank < merged[j].Rank
	})

	lo := req.Offset
	if lo > len(merged) {
		lo = len(merged)
	}
	hi := lo + req.Limit
	if hi > len(merged) {
		hi = len(merged)
	}

	resp := &Response{
		Query:      req.Query,
		Mode:       req.Mode,
		Results:    merged[lo:hi],
		Total:      total,
		Page:       req.Offset/req.Limit + 1,
		TotalPages: (total + req.Limit - 1) / req.Limit,
		Limit:      req.Limit,
		Offset:     req.Offset,
		Elapsed:    time.Since(start),
	}
	resp.HasPrev = resp.Page > 1
	resp.HasNext = resp.Page < resp.TotalPages
	return resp, nil
}
