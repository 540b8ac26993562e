package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// SearchOptions filter and page full-text search results.
type SearchOptions struct {
	// FileTypes restricts matches to these extensions. Empty means all.
	FileTypes []string

	// ModifiedAfter / ModifiedBefore bound the file modification time.
	// Zero values disable the bound.
	ModifiedAfter  time.Time
	ModifiedBefore time.Time

	// MinSize / MaxSize bound the file size in bytes. Zero disables.
	MinSize int64
	MaxSize int64

	// Limit and Offset page the result set. Limit <= 0 means no limit.
	Limit  int
	Offset int
}

// SearchRow is one full-text match.
type SearchRow struct {
	ID         int64
	FilePath   string
	FileName   string
	FileType   string
	SizeBytes  int64
	ModifiedAt time.Time

	// Snippet is a contextual excerpt with <mark> tags around hits.
	Snippet string

	// Rank is the bm25 relevance score. More negative is more relevant,
	// so results are ordered ascending.
	Rank float64
}

// buildFilter renders the shared WHERE tail for search queries.
func buildFilter(opts SearchOptions) (string, []any) {
	var sb strings.Builder
	var args []any

	if len(opts.FileTypes) > 0 {
		sb.WriteString(" AND d.file_type IN (?")
		sb.WriteString(strings.Repeat(",?", len(opts.FileTypes)-1))
		sb.WriteString(")")
		for _, ft := range opts.FileTypes {
			args = append(args, ft)
		}
	}
	if !opts.ModifiedAfter.IsZero() {
		sb.WriteString(" AND d.modified_at >= ?")
		args = append(args, formatTime(opts.ModifiedAfter))
	}
	if !opts.ModifiedBefore.IsZero() {
		sb.WriteString(" AND d.modified_at <= ?")
		args = append(args, formatTime(opts.ModifiedBefore))
	}
	if opts.MinSize > 0 {
		sb.WriteString(" AND d.size_bytes >= ?")
		args = append(args, opts.MinSize)
	}
	if opts.MaxSize > 0 {
		sb.WriteString(" AND d.size_bytes <= ?")
		args = append(args, opts.MaxSize)
	}
	return sb.String(), args
}

// SearchFTS runs an FTS5 MATCH query against active documents, ordered
// by bm25 relevance. The match string must already be valid FTS5 query
// syntax; the query engine builds it.
func (s *Store) SearchFTS(ctx context.Context, match string, opts SearchOptions) ([]*SearchRow, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	filter, filterArgs := buildFilter(opts)
	query := `
		SELECT d.id, d.file_path, d.file_name, d.file_type, d.size_bytes, d.modified_at,
			snippet(documents_fts, 0, '<mark>', '</mark>', '...', 32) AS snip,
			bm25(documents_fts) AS rank
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ? AND d.status = ?` + filter + `
		ORDER BY rank ASC`
	args := append([]any{match, StatusActive}, filterArgs...)
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeSearchFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var results []*SearchRow
	for rows.Next() {
		var r SearchRow
		var modifiedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.FilePath, &r.FileName, &r.FileType,
			&r.SizeBytes, &modifiedAt, &r.Snippet, &r.Rank); err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeSearchFailed, err)
		}
		r.ModifiedAt = parseTime(modifiedAt.String)
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeSearchFailed, err)
	}
	return results, nil
}

// CountFTS returns the total number of active documents matching the
// query under the same filters as SearchFTS, ignoring pagination.
func (s *Store) CountFTS(ctx context.Context, match string, opts SearchOptions) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	filter, filterArgs := buildFilter(opts)
	query := `
		SELECT COUNT(*)
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ? AND d.status = ?` + filter
	args := append([]any{match, StatusActive}, filterArgs...)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeSearchFailed, err)
	}
	return count, nil
}
