// Package index coordinates scanning, parsing, and storage into full
// indexing operations.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/pipeline"
	"github.com/quarrysearch/quarry/internal/scanner"
	"github.com/quarrysearch/quarry/internal/store"
)

// Stats reports the outcome of an indexing operation.
type Stats struct {
	// TotalFiles is how many files the scan accepted.
	TotalFiles int
	// IndexedFiles is how many documents were written.
	IndexedFiles int
	// FailedFiles is how many files failed to parse or store.
	FailedFiles int
	// SkippedFiles counts duplicates and unchanged files.
	SkippedFiles int
	// TotalSize sums the sizes of indexed files, in bytes.
	TotalSize int64
	// Elapsed is the wall-clock duration of the operation.
	Elapsed time.Duration
	// Errors holds one message per failed file.
	Errors []string

	// Refresh breakdown. Zero for full index builds.
	AddedFiles   int
	UpdatedFiles int
	DeletedFiles int
}

// Indexer runs indexing operations against one store.
type Indexer struct {
	scanner   *scanner.Scanner
	pipeline  *pipeline.Pipeline
	store     store.DocumentStore
	batchSize int
	logger    *slog.Logger

	// PurgeDeleted makes RefreshIndex remove vanished files outright
	// instead of soft-deleting them.
	PurgeDeleted bool
}

// New creates an indexer from its collaborators.
func New(sc *scanner.Scanner, pl *pipeline.Pipeline, st store.DocumentStore, batchSize int, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		scanner:   sc,
		pipeline:  pl,
		store:     st,
		batchSize: batchSize,
		logger:    logger,
	}
}

// CreateIndex scans the directories and indexes every accepted file,
// parsing serially.
func (ix *Indexer) CreateIndex(ctx context.Context, dirs []string, recursive bool, progress pipeline.ProgressFunc) (*Stats, error) {
	return ix.create(ctx, dirs, recursive, false, progress)
}

// CreateIndexParallel is CreateIndex with a parallel parse pool.
func (ix *Indexer) CreateIndexParallel(ctx context.Context, dirs []string, recursive bool, progress pipeline.ProgressFunc) (*Stats, error) {
	return ix.create(ctx, dirs, recursive, true, progress)
}

func (ix *Indexer) create(ctx context.Context, dirs []string, recursive, parallel bool, progress pipeline.ProgressFunc) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	records, err := ix.collect(ctx, dirs, recursive)
	if err != nil {
		return nil, err
	}
	stats.TotalFiles = len(records)

	ix.logger.Info("indexing started",
		slog.Int("files", len(records)),
		slog.Bool("parallel", parallel))

	docs, failures, err := ix.parse(ctx, records, parallel, progress)
	if err != nil {
		return nil, err
	}
	ix.recordFailures(stats, failures)

	writer := pipeline.NewBatchWriter(ix.store, ix.batchSize, ix.logger)
	for _, doc := range docs {
		if err := writer.Add(ctx, doc); err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeIndexFailed, err)
		}
		stats.TotalSize += doc.SizeBytes
	}
	if err := writer.Flush(ctx); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeIndexFailed, err)
	}
	ix.recordWriteFailures(stats, writer.Failures())
	stats.IndexedFiles = writer.Written()

	stats.Elapsed = time.Since(start)
	ix.logger.Info("indexing finished",
		slog.Int("indexed", stats.IndexedFiles),
		slog.Int("failed", stats.FailedFiles),
		slog.Int("skipped", stats.SkippedFiles),
		slog.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

// RefreshIndex synchronizes the store with the current state of the
// directories: new files are added, changed files reindexed, and
// vanished files soft-deleted (removed outright when PurgeDeleted is
// set). Unchanged files are untouched, so a refresh over an unchanged
// tree is a no-op.
func (ix *Indexer) RefreshIndex(ctx context.Context, dirs []string, recursive, parallel bool, progress pipeline.ProgressFunc) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	stored, err := ix.store.PathHashes(ctx)
	if err != nil {
		return nil, err
	}

	records, err := ix.collect(ctx, dirs, recursive)
	if err != nil {
		return nil, err
	}
	stats.TotalFiles = len(records)

	changes := pipeline.Detect(stored, records)
	stats.SkippedFiles = len(changes.Unchanged)
	total := changes.Total()

	ix.logger.Info("refresh started",
		slog.Int("added", len(changes.Added)),
		slog.Int("updated", len(changes.Updated)),
		slog.Int("deleted", len(changes.Deleted)),
		slog.Int("unchanged", len(changes.Unchanged)))

	processed := 0
	phaseProgress := func(_ int, _ int, path string) {
		processed++
		if progress != nil {
			progress(processed, total, path)
		}
	}

	// Added files go through the batch writer.
	addedDocs, failures, err := ix.parse(ctx, changes.Added, parallel, phaseProgress)
	if err != nil {
		return nil, err
	}
	ix.recordFailures(stats, failures)

	writer := pipeline.NewBatchWriter(ix.store, ix.batchSize, ix.logger)
	for _, doc := range addedDocs {
		if err := writer.Add(ctx, doc); err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeIndexFailed, err)
		}
		stats.TotalSize += doc.SizeBytes
	}
	if err := writer.Flush(ctx); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeIndexFailed, err)
	}
	stats.AddedFiles = writer.Written()

	// A path that was soft-deleted and reappeared on disk still owns a
	// row, so the insert collides. Rewriting the row reactivates it.
	byPath := make(map[string]*store.Document, len(addedDocs))
	for _, doc := range addedDocs {
		byPath[doc.FilePath] = doc
	}
	for _, f := range writer.Failures() {
		doc := byPath[f.Path]
		if !qerrors.IsDuplicatePath(f.Err) || doc == nil {
			stats.FailedFiles++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", f.Path, f.Err))
			continue
		}
		doc.ID = 0
		if err := ix.store.Update(ctx, doc); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			stats.FailedFiles++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}
		stats.AddedFiles++
	}

	// Updated files rewrite existing rows one at a time.
	updatedDocs, failures, err := ix.parse(ctx, changes.Updated, parallel, phaseProgress)
	if err != nil {
		return nil, err
	}
	ix.recordFailures(stats, failures)

	for _, doc := range updatedDocs {
		if err := ix.store.Update(ctx, doc); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			stats.FailedFiles++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", doc.FilePath, err))
			continue
		}
		stats.UpdatedFiles++
		stats.TotalSize += doc.SizeBytes
	}

	// Vanished files are soft-deleted so they stay recoverable.
	for _, path := range changes.Deleted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := ix.store.DeleteByPath(ctx, path, ix.PurgeDeleted); err != nil {
			stats.FailedFiles++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
		} else {
			stats.DeletedFiles++
		}
		processed++
		if progress != nil {
			progress(processed, total, path)
		}
	}

	stats.IndexedFiles = stats.AddedFiles + stats.UpdatedFiles
	stats.Elapsed = time.Since(start)
	ix.logger.Info("refresh finished",
		slog.Int("added", stats.AddedFiles),
		slog.Int("updated", stats.UpdatedFiles),
		slog.Int("deleted", stats.DeletedFiles),
		slog.Int("failed", stats.FailedFiles),
		slog.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

// collect drains the scanner into a slice.
func (ix *Indexer) collect(ctx context.Context, dirs []string, recursive bool) ([]scanner.Record, error) {
	var records []scanner.Record
	for rec := range ix.scanner.Scan(ctx, dirs, recursive) {
		records = append(records, rec)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (ix *Indexer) parse(ctx context.Context, records []scanner.Record, parallel bool, progress pipeline.ProgressFunc) ([]*store.Document, []pipeline.Failure, error) {
	if parallel {
		return ix.pipeline.RunParallel(ctx, records, progress)
	}
	return ix.pipeline.Run(ctx, records, progress)
}

func (ix *Indexer) recordFailures(stats *Stats, failures []pipeline.Failure) {
	for _, f := range failures {
		stats.FailedFiles++
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", f.Path, f.Err))
	}
}

// recordWriteFailures classifies write failures: duplicates are skips,
// anything else is a failure.
func (ix *Indexer) recordWriteFailures(stats *Stats, failures []pipeline.Failure) {
	for _, f := range failures {
		if qerrors.IsDuplicatePath(f.Err) {
			stats.SkippedFiles++
			continue
		}
		stats.FailedFiles++
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", f.Path, f.Err))
	}
}
