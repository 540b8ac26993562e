package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/parser"
	"github.com/quarrysearch/quarry/internal/scanner"
	"github.com/quarrysearch/quarry/internal/store"
)

// Failure records one file that could not be parsed.
type Failure struct {
	Path string
	Err  error
}

// ProgressFunc receives progress after each completed file. In parallel
// mode calls are serialized; implementations never need locking.
type ProgressFunc func(processed, total int, path string)

// Pipeline parses scanned files into documents ready for storage.
type Pipeline struct {
	registry *parser.Registry
	logger   *slog.Logger

	// Workers is the parallel parse pool size.
	Workers int

	// ParseTimeout bounds a single parse task in parallel mode.
	ParseTimeout time.Duration
}

// New creates a pipeline using the given parser registry.
func New(registry *parser.Registry, workers int, parseTimeout time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if parseTimeout <= 0 {
		parseTimeout = 30 * time.Second
	}
	return &Pipeline{
		registry:     registry,
		logger:       logger,
		Workers:      workers,
		ParseTimeout: parseTimeout,
	}
}

// Run parses records one at a time. Parse failures are collected, not
// fatal; only cancellation aborts the run.
func (p *Pipeline) Run(ctx context.Context, records []scanner.Record, progress ProgressFunc) ([]*store.Document, []Failure, error) {
	var docs []*store.Document
	var failures []Failure

	total := len(records)
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return docs, failures, err
		}

		doc, err := p.parseOne(ctx, rec)
		if err != nil {
			if ctx.Err() != nil {
				return docs, failures, ctx.Err()
			}
			failures = append(failures, Failure{Path: rec.Path, Err: err})
			p.logger.Warn("parse failed",
				slog.String("path", rec.Path),
				slog.String("error", err.Error()))
		} else {
			docs = append(docs, doc)
		}

		if progress != nil {
			progress(i+1, total, rec.Path)
		}
	}
	return docs, failures, nil
}

// RunParallel parses records with a worker pool. Results are collected
// by a single coordinator goroutine, so progress callbacks and result
// ordering bookkeeping stay serialized. Output order is completion
// order, not input order.
func (p *Pipeline) RunParallel(ctx context.Context, records []scanner.Record, progress ProgressFunc) ([]*store.Document, []Failure, error) {
	if len(records) == 0 {
		return nil, nil, nil
	}

	type outcome struct {
		path string
		doc  *store.Document
		err  error
	}

	tasks := make(chan scanner.Record)
	results := make(chan outcome)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(tasks)
		for _, rec := range records {
			select {
			case tasks <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers := p.Workers
	wg, _ := errgroup.WithContext(gctx)
	for i := 0; i < workers; i++ {
		wg.Go(func() error {
			for rec := range tasks {
				doc, err := p.parseOne(gctx, rec)
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				select {
				case results <- outcome{path: rec.Path, doc: doc, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		_ = wg.Wait()
		close(results)
	}()

	var docs []*store.Document
	var failures []Failure
	processed := 0
	total := len(records)

	for out := range results {
		processed++
		if out.err != nil {
			failures = append(failures, Failure{Path: out.path, Err: out.err})
			p.logger.Warn("parse failed",
				slog.String("path", out.path),
				slog.String("error", out.err.Error()))
		} else {
			docs = append(docs, out.doc)
		}
		if progress != nil {
			progress(processed, total, out.path)
		}
	}

	if err := g.Wait(); err != nil {
		return docs, failures, err
	}
	if err := wg.Wait(); err != nil {
		return docs, failures, err
	}
	return docs, failures, nil
}

// parseOne parses a single scanned file into a document.
func (p *Pipeline) parseOne(ctx context.Context, rec scanner.Record) (*store.Document, error) {
	prs := p.registry.Lookup(rec.Path)
	if prs == nil {
		return nil, qerrors.New(qerrors.ErrCodeNoParser,
			fmt.Sprintf("no parser for %s", rec.Path), nil)
	}

	result, err := p.parseWithTimeout(ctx, prs, rec.Path)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		if result.Err != nil {
			return nil, result.Err
		}
		return nil, qerrors.New(qerrors.ErrCodeParseFailed,
			fmt.Sprintf("parse failed for %s", rec.Path), nil)
	}

	return &store.Document{
		FilePath:    rec.Path,
		FileName:    filepath.Base(rec.Path),
		FileType:    strings.ToLower(filepath.Ext(rec.Path)),
		Content:     result.Content,
		ContentHash: rec.ContentHash,
		SizeBytes:   rec.SizeBytes,
		ModifiedAt:  rec.ModifiedAt,
		Metadata:    result.Metadata,
	}, nil
}

// parseWithTimeout bounds one parse task. A parser that ignores its
// context is abandoned at the deadline rather than waited on.
func (p *Pipeline) parseWithTimeout(ctx context.Context, prs parser.Parser, path string) (*parser.Result, error) {
	tctx, cancel := context.WithTimeout(ctx, p.ParseTimeout)
	defer cancel()

	type parseReturn struct {
		result *parser.Result
		err    error
	}
	done := make(chan parseReturn, 1)
	go func() {
		result, err := prs.Parse(tctx, path)
		done <- parseReturn{result, err}
	}()

	select {
	case r := <-done:
		return r.result, r.err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, qerrors.TimeoutError(
				fmt.Sprintf("parse timed out after %s: %s", p.ParseTimeout, path), tctx.Err())
		}
		return nil, tctx.Err()
	}
}
