// Package parser extracts indexable text content from files.
//
// Parsers are selected by file extension through a Registry. A parser
// never returns an error for recoverable per-file failures; instead it
// reports them in Result.Err so callers can count them as skipped files
// without aborting a whole indexing run.
package parser

import (
	"context"
)

// Result is the outcome of parsing a single file.
type Result struct {
	// Success reports whether content extraction succeeded.
	Success bool

	// Content is the extracted plain text. Empty on failure.
	Content string

	// Metadata holds parser-specific key-value pairs (line counts,
	// encodings, titles) persisted alongside the document.
	Metadata map[string]string

	// Err describes the failure when Success is false.
	Err error
}

// Parser extracts text content from files of specific types.
type Parser interface {
	// Name returns a short identifier for the parser.
	Name() string

	// Extensions returns the file extensions this parser handles,
	// lowercase with leading dot.
	Extensions() []string

	// Parse extracts content from the file at path. Recoverable
	// failures are reported through Result.Err, not the error return;
	// the error return is reserved for context cancellation.
	Parse(ctx context.Context, path string) (*Result, error)
}
