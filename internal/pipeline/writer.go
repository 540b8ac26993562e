package pipeline

import (
	"context"
	"log/slog"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/store"
)

// BatchWriter buffers documents and commits them in batches. When a
// batch fails as a whole it falls back to row-at-a-time inserts so one
// bad document cannot sink its batchmates.
//
// Not safe for concurrent use; the indexing coordinator owns it.
type BatchWriter struct {
	store     store.DocumentStore
	batchSize int
	logger    *slog.Logger

	buf      []*store.Document
	written  int
	failures []Failure
}

// NewBatchWriter creates a writer committing every batchSize documents.
func NewBatchWriter(st store.DocumentStore, batchSize int, logger *slog.Logger) *BatchWriter {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchWriter{
		store:     st,
		batchSize: batchSize,
		logger:    logger,
		buf:       make([]*store.Document, 0, batchSize),
	}
}

// Add buffers a document, flushing when the batch is full.
func (w *BatchWriter) Add(ctx context.Context, doc *store.Document) error {
	w.buf = append(w.buf, doc)
	if len(w.buf) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush commits any buffered documents. Per-document failures (such as
// duplicates) are absorbed into the failure list; only fatal storage
// errors propagate.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	batch := w.buf
	w.buf = w.buf[:0]

	if _, err := w.store.InsertBatch(ctx, batch); err == nil {
		w.written += len(batch)
		return nil
	} else if qerrors.IsFatal(err) || ctx.Err() != nil {
		return err
	} else {
		w.logger.Warn("batch insert failed, retrying row by row",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()))
	}

	for _, doc := range batch {
		if _, err := w.store.Insert(ctx, doc); err != nil {
			if qerrors.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			w.failures = append(w.failures, Failure{Path: doc.FilePath, Err: err})
			w.logger.Warn("document insert failed",
				slog.String("path", doc.FilePath),
				slog.String("error", err.Error()))
			continue
		}
		w.written++
	}
	return nil
}

// Written returns the number of documents committed so far.
func (w *BatchWriter) Written() int {
	return w.written
}

// Failures returns documents that could not be written.
func (w *BatchWriter) Failures() []Failure {
	return w.failures
}
