// Package search executes full-text queries with ranking, pagination,
// result caching, and query history.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/store"
)

// DefaultLimit is the page size used when the request does not set one.
const DefaultLimit = 20

// historyCap bounds the in-memory query history.
const historyCap = 50

// Request describes one search.
type Request struct {
	Query string
	// Mode is fuzzy or exact. Empty means fuzzy.
	Mode string
	// FileTypes restricts matches to these extensions.
	FileTypes []string
	// Limit is the page size. Zero means DefaultLimit.
	Limit int
	// Offset skips the first N results.
	Offset int

	// BypassCache skips both cache lookup and cache store.
	BypassCache bool

	// Advanced filters. Zero values disable each bound.
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
	MinSize        int64
	MaxSize        int64
}

// Result is one ranked hit.
type Result struct {
	ID         int64
	FilePath   string
	FileName   string
	FileType   string
	SizeBytes  int64
	ModifiedAt time.Time
	Snippet    string
	Rank       float64

	// Library names the source library in multi-library searches.
	Library string
}

// Response is a page of results with pagination bookkeeping.
type Response struct {
	Query      string
	Mode       string
	Results    []*Result
	Total      int
	Page       int
	TotalPages int
	HasPrev    bool
	HasNext    bool
	Limit      int
	Offset     int
	Elapsed    time.Duration

	// Cached reports whether this response was served from the cache.
	Cached bool
}

// HistoryEntry records one executed search.
type HistoryEntry struct {
	Query    string
	Mode     string
	Total    int
	CacheHit bool
	Elapsed  time.Duration
	When     time.Time
}

// CacheStats reports result cache effectiveness.
type CacheStats struct {
	Hits   int
	Misses int
	Size   int
}

// HitRate returns the fraction of lookups served from cache.
func (c CacheStats) HitRate() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) / float64(total)
}

// Searcher is the store surface the engine needs.
type Searcher interface {
	SearchFTS(ctx context.Context, match string, opts store.SearchOptions) ([]*store.SearchRow, error)
	CountFTS(ctx context.Context, match string, opts store.SearchOptions) (int, error)
}

// Engine executes searches against one document store.
type Engine struct {
	store  Searcher
	cache  *lru.Cache[string, *Response]
	logger *slog.Logger

	mu      sync.Mutex
	hits    int
	misses  int
	history []HistoryEntry
}

// NewEngine creates a search engine with an LRU result cache of the
// given capacity.
func NewEngine(st Searcher, cacheSize int, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[string, *Response](cacheSize)
	if err != nil {
		return nil, qerrors.InternalError("create result cache", err)
	}
	return &Engine{store: st, cache: cache, logger: logger}, nil
}

// Search runs a cached, paginated full-text query.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if err := normalize(&req); err != nil {
		return nil, err
	}

	if req.BypassCache {
		resp, err := e.execute(ctx, req)
		if err != nil {
			return nil, err
		}
		e.record(req, resp.Total, resp.Elapsed, false)
		return resp, nil
	}

	key := cacheKey(req)
	if cached, ok := e.cache.Get(key); ok {
		e.mu.Lock()
		e.hits++
		e.mu.Unlock()

		resp := *cached
		resp.Cached = true
		e.record(req, resp.Total, 0, true)
		return &resp, nil
	}
	e.mu.Lock()
	e.misses++
	e.mu.Unlock()

	resp, err := e.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	e.cache.Add(key, resp)
	e.record(req, resp.Total, resp.Elapsed, false)
	return resp, nil
}

// AdvancedSearch runs a query with date and size filters. The filters
// are part of the cache key, so filtered pages cache independently of
// unfiltered ones.
func (e *Engine) AdvancedSearch(ctx context.Context, req Request) (*Response, error) {
	return e.Search(ctx, req)
}

// execute runs the query against the store and assembles a page.
func (e *Engine) execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	match := buildMatch(req.Query, req.Mode)
	opts := store.SearchOptions{
		FileTypes:      req.FileTypes,
		ModifiedAfter:  req.ModifiedAfter,
		ModifiedBefore: req.ModifiedBefore,
		MinSize:        req.MinSize,
		MaxSize:        req.MaxSize,
		Limit:          req.Limit,
		Offset:         req.Offset,
	}

	total, err := e.store.CountFTS(ctx, match, opts)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.SearchFTS(ctx, match, opts)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(rows))
	for i, r := range rows {
		results[i] = fromRow(r, "")
	}

	elapsed := time.Since(start)
	e.logger.Debug("search executed",
		slog.String("query", req.Query),
		slog.String("mode", req.Mode),
		slog.Int("total", total),
		slog.Duration("elapsed", elapsed))

	resp := &Response{
		Query:      req.Query,
		Mode:       req.Mode,
		Results:    results,
		Total:      total,
		Page:       req.Offset/req.Limit + 1,
		TotalPages: (total + req.Limit - 1) / req.Limit,
		Limit:      req.Limit,
		Offset:     req.Offset,
		Elapsed:    elapsed,
	}
	resp.HasPrev = resp.Page > 1
	resp.HasNext = resp.Page < resp.TotalPages
	return resp, nil
}

// normalize validates the request and applies defaults.
func normalize(req *Request) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return qerrors.New(qerrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	switch req.Mode {
	case "":
		req.Mode = ModeFuzzy
	case ModeFuzzy, ModeExact:
	default:
		return qerrors.New(qerrors.ErrCodeInvalidMode,
			fmt.Sprintf("invalid search mode: %s", req.Mode), nil)
	}
	if req.Limit < 0 {
		return qerrors.New(qerrors.ErrCodeInvalidInput, "limit must not be negative", nil)
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Offset < 0 {
		return qerrors.New(qerrors.ErrCodeInvalidPage, "offset must not be negative", nil)
	}
	return nil
}

// cacheKey builds a deterministic key covering everything that affects
// a cached page, the advanced filters included.
func cacheKey(req Request) string {
	types := append([]string(nil), req.FileTypes...)
	sort.Strings(types)
	return fmt.Sprintf("%s|%s|%d|%d|%s|%s|%s|%d|%d",
		req.Query, req.Mode, req.Limit, req.Offset, strings.Join(types, ","),
		filterTime(req.ModifiedAfter), filterTime(req.ModifiedBefore),
		req.MinSize, req.MaxSize)
}

func filterTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func fromRow(r *store.SearchRow, library string) *Result {
	return &Result{
		ID:         r.ID,
		FilePath:   r.FilePath,
		FileName:   r.FileName,
		FileType:   r.FileType,
		SizeBytes:  r.SizeBytes,
		ModifiedAt: r.ModifiedAt,
		Snippet:    r.Snippet,
		Rank:       r.Rank,
		Library:    library,
	}
}

// record appends to the bounded query history, most recent first.
func (e *Engine) record(req Request, total int, elapsed time.Duration, cacheHit bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := HistoryEntry{
		Query:    req.Query,
		Mode:     req.Mode,
		Total:    total,
		CacheHit: cacheHit,
		Elapsed:  elapsed,
		When:     time.Now(),
	}
	e.history = append([]HistoryEntry{entry}, e.history...)
	if len(e.history) > historyCap {
		e.history = e.history[:historyCap]
	}
}

// History returns executed searches, most recent first.
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HistoryEntry(nil), e.history...)
}

// PopularQueries returns the most frequent history queries, up to n.
// Ties break toward more recent queries.
func (e *Engine) PopularQueries(n int) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := make(map[string]int)
	recency := make(map[string]int)
	for i, entry := range e.history {
		counts[entry.Query]++
		if _, ok := recency[entry.Query]; !ok {
			recency[entry.Query] = i
		}
	}

	queries := make([]string, 0, len(counts))
	for q := range counts {
		queries = append(queries, q)
	}
	sort.Slice(queries, func(i, j int) bool {
		if counts[queries[i]] != counts[queries[j]] {
			return counts[queries[i]] > counts[queries[j]]
		}
		return recency[queries[i]] < recency[queries[j]]
	})

	if n > 0 && len(queries) > n {
		queries = queries[:n]
	}
	return queries
}

// NameSuggester is an optional store capability that completes indexed
// file names. Stores without it contribute history suggestions only.
type NameSuggester interface {
	SuggestFileNames(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Suggest returns completions for prefix: distinct history queries
// first, most recent first, then indexed file names when the store
// supports name lookup. At most n entries.
func (e *Engine) Suggest(ctx context.Context, prefix string, n int) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	seen := make(map[string]struct{})
	var out []string

	e.mu.Lock()
	for _, entry := range e.history {
		q := entry.Query
		if _, dup := seen[q]; dup {
			continue
		}
		if prefix != "" && !strings.HasPrefix(strings.ToLower(q), prefix) {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if n > 0 && len(out) >= n {
			break
		}
	}
	e.mu.Unlock()

	if n > 0 && len(out) >= n {
		return out
	}
	ns, ok := e.store.(NameSuggester)
	if !ok {
		return out
	}
	names, err := ns.SuggestFileNames(ctx, prefix, n-len(out))
	if err != nil {
		e.logger.Warn("file name suggestions failed", slog.String("error", err.Error()))
		return out
	}
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}

// CacheStats returns hit and miss counters for the result cache.
func (e *Engine) CacheStats() CacheStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return CacheStats{Hits: e.hits, Misses: e.misses, Size: e.cache.Len()}
}

// ClearCache drops all cached responses and resets the counters.
func (e *Engine) ClearCache() {
	e.cache.Purge()
	e.mu.Lock()
	e.hits = 0
	e.misses = 0
	e.mu.Unlock()
}
