package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// Statistics summarizes store contents.
type Statistics struct {
	// TotalDocuments counts active documents.
	TotalDocuments int
	// DeletedDocuments counts soft-deleted documents still on disk.
	DeletedDocuments int
	// TotalSizeBytes sums the original file sizes of active documents.
	TotalSizeBytes int64
	// FileTypes maps extension to active document count.
	FileTypes map[string]int
	// LastIndexedAt is the most recent indexing time among active documents.
	LastIndexedAt time.Time
	// DatabaseSizeBytes is the size of the database file itself.
	DatabaseSizeBytes int64
}

// Summary is an optional generated abstract stored per document.
// KeyPoints and Entities hold caller-encoded lists (typically JSON).
type Summary struct {
	DocumentID  int64
	Text        string
	KeyPoints   string
	Entities    string
	GeneratedAt time.Time
}

// Statistics returns aggregate counts for the store.
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	stats := &Statistics{FileTypes: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM documents WHERE status = ?`, StatusActive).
		Scan(&stats.TotalDocuments, &stats.TotalSizeBytes)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE status = ?`, StatusDeleted).
		Scan(&stats.DeletedDocuments)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}

	var lastIndexed sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT MAX(indexed_at) FROM documents WHERE status = ?`, StatusActive).
		Scan(&lastIndexed)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	stats.LastIndexedAt = parseTime(lastIndexed.String)

	types, err := s.FileTypeStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.FileTypes = types

	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseSizeBytes = info.Size()
	}
	return stats, nil
}

// Info describes the database file and its effective pragmas.
type Info struct {
	Path        string
	SizeBytes   int64
	PageSize    int64
	PageCount   int64
	JournalMode string
}

// Info returns database-level details for diagnostics output.
func (s *Store) Info(ctx context.Context) (*Info, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	info := &Info{Path: s.path}
	if fi, err := os.Stat(s.path); err == nil {
		info.SizeBytes = fi.Size()
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&info.PageSize); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&info.PageCount); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&info.JournalMode); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	return info, nil
}

// TypeBreakdown aggregates active documents of one file type.
type TypeBreakdown struct {
	Count      int
	TotalBytes int64
	AvgBytes   int64
	// Percent is the share of active documents with this type, 0-100.
	Percent float64
}

// FileTypeBreakdown returns per-type counts, sizes, and shares for
// active documents.
func (s *Store) FileTypeBreakdown(ctx context.Context) (map[string]TypeBreakdown, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_type, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM documents WHERE status = ? GROUP BY file_type`, StatusActive)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = rows.Close() }()

	breakdown := make(map[string]TypeBreakdown)
	total := 0
	for rows.Next() {
		var ft string
		var b TypeBreakdown
		if err := rows.Scan(&ft, &b.Count, &b.TotalBytes); err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
		}
		if b.Count > 0 {
			b.AvgBytes = b.TotalBytes / int64(b.Count)
		}
		breakdown[ft] = b
		total += b.Count
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}

	if total > 0 {
		for ft, b := range breakdown {
			b.Percent = float64(b.Count) / float64(total) * 100
			breakdown[ft] = b
		}
	}
	return breakdown, nil
}

// FileTypeStats returns active document counts per file type.
func (s *Store) FileTypeStats(ctx context.Context) (map[string]int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_type, COUNT(*) FROM documents
		WHERE status = ? GROUP BY file_type`, StatusActive)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = rows.Close() }()

	types := make(map[string]int)
	for rows.Next() {
		var ft string
		var n int
		if err := rows.Scan(&ft, &n); err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
		}
		types[ft] = n
	}
	return types, rows.Err()
}

// CheckIntegrity runs SQLite's integrity check. A non-ok result means
// the database file is corrupt.
func (s *Store) CheckIntegrity(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	var result string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return qerrors.New(qerrors.ErrCodeCorruptStore,
			fmt.Sprintf("integrity check failed: %v", err), err)
	}
	if result != "ok" {
		return qerrors.New(qerrors.ErrCodeCorruptStore,
			fmt.Sprintf("integrity check: %s", result), nil)
	}
	return nil
}

// Vacuum reclaims free pages and defragments the database file.
func (s *Store) Vacuum(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	return nil
}

// Backup writes a consistent copy of the database to destPath using
// VACUUM INTO, which is safe while the store is in use.
func (s *Store) Backup(ctx context.Context, destPath string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := os.Stat(destPath); err == nil {
		return qerrors.ValidationError(fmt.Sprintf("backup target already exists: %s", destPath))
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, destPath); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	return nil
}

// SaveSummary upserts the generated summary for a document.
func (s *Store) SaveSummary(ctx context.Context, sum *Summary) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_summaries (document_id, summary, key_points, entities, generated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			summary = excluded.summary,
			key_points = excluded.key_points,
			entities = excluded.entities,
			generated_at = excluded.generated_at`,
		sum.DocumentID, sum.Text, sum.KeyPoints, sum.Entities, formatTime(time.Now()))
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	return nil
}

// GetSummary returns the stored summary for a document, or a not-found
// error when none exists.
func (s *Store) GetSummary(ctx context.Context, docID int64) (*Summary, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var sum Summary
	var keyPoints, entities, generatedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, summary, key_points, entities, generated_at
		FROM document_summaries WHERE document_id = ?`, docID).
		Scan(&sum.DocumentID, &sum.Text, &keyPoints, &entities, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, qerrors.NotFoundError(fmt.Sprintf("no summary for document %d", docID))
	}
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	sum.KeyPoints = keyPoints.String
	sum.Entities = entities.String
	sum.GeneratedAt = parseTime(generatedAt.String)
	return &sum, nil
}

// SetConfig stores a key-value pair in the index configuration table.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()))
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	return nil
}

// GetConfig returns the stored value for key, or empty string when the
// key is unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM index_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	return value, nil
}
