package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// ListOptions filters document listings.
type ListOptions struct {
	// FileType restricts results to one extension (e.g. ".txt").
	FileType string
	// Status filters by document status. Empty means active.
	Status string
	// Limit bounds the result count. Zero means no limit.
	Limit int
	// Offset skips the first N rows.
	Offset int
	// OrderBy picks the sort column: path, name, size, modified, or
	// indexed. Empty means path.
	OrderBy string
	// Descending reverses the sort direction.
	Descending bool
}

// orderColumn maps a ListOptions.OrderBy value to a schema column.
// Unknown values fall back to file_path.
func orderColumn(field string) string {
	switch field {
	case "name":
		return "file_name"
	case "size":
		return "size_bytes"
	case "modified":
		return "modified_at"
	case "indexed":
		return "indexed_at"
	default:
		return "file_path"
	}
}

// Insert stores a new document and its FTS entry atomically.
// Returns the assigned document ID. Inserting a path that already
// exists fails with a duplicate-path error.
func (s *Store) Insert(ctx context.Context, doc *Document) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := insertTx(ctx, tx, doc)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	doc.ID = id
	return id, nil
}

// InsertBatch stores documents in a single transaction. Either all
// documents are committed or none are.
func (s *Store) InsertBatch(ctx context.Context, docs []*Document) ([]int64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(docs))
	for _, doc := range docs {
		id, err := insertTx(ctx, tx, doc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	for i, doc := range docs {
		doc.ID = ids[i]
	}
	return ids, nil
}

// insertTx inserts one document within an open transaction.
func insertTx(ctx context.Context, tx *sql.Tx, doc *Document) (int64, error) {
	now := time.Now()
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	indexedAt := doc.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = now
	}
	status := doc.Status
	if status == "" {
		status = StatusActive
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (file_path, file_name, file_type, content, content_hash,
			size_bytes, created_at, modified_at, indexed_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.FilePath, doc.FileName, doc.FileType, doc.Content, doc.ContentHash,
		doc.SizeBytes, formatTime(createdAt), formatTime(doc.ModifiedAt),
		formatTime(indexedAt), status)
	if err != nil {
		if isUniquePathViolation(err) {
			return 0, qerrors.DuplicatePathError(doc.FilePath)
		}
		return 0, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents_fts (rowid, content, file_name, file_path)
		VALUES (?, ?, ?, ?)`,
		id, doc.Content, doc.FileName, doc.FilePath); err != nil {
		return 0, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}

	if err := replaceMetadataTx(ctx, tx, id, doc.Metadata); err != nil {
		return 0, err
	}
	return id, nil
}

// replaceMetadataTx replaces all metadata rows for a document.
func replaceMetadataTx(ctx context.Context, tx *sql.Tx, docID int64, metadata map[string]string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_metadata WHERE document_id = ?`, docID); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	if len(metadata) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_metadata (document_id, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = stmt.Close() }()

	for k, v := range metadata {
		if _, err := stmt.ExecContext(ctx, docID, k, v); err != nil {
			return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
		}
	}
	return nil
}

// Update rewrites a document's content, hash, timestamps, metadata, and
// FTS entry. The document is located by ID when set, otherwise by path.
func (s *Store) Update(ctx context.Context, doc *Document) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if doc.ID == 0 {
		existing, err := s.GetByPath(ctx, doc.FilePath)
		if err != nil {
			return err
		}
		doc.ID = existing.ID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET content = ?, content_hash = ?, size_bytes = ?, modified_at = ?,
			indexed_at = ?, status = ?
		WHERE id = ?`,
		doc.Content, doc.ContentHash, doc.SizeBytes, formatTime(doc.ModifiedAt),
		formatTime(time.Now()), StatusActive, doc.ID)
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	if affected == 0 {
		return qerrors.NotFoundError(fmt.Sprintf("document %d not found", doc.ID))
	}

	// FTS5 requires delete-then-insert to rewrite an entry.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents_fts WHERE rowid = ?`, doc.ID); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents_fts (rowid, content, file_name, file_path)
		VALUES (?, ?, ?, ?)`,
		doc.ID, doc.Content, doc.FileName, doc.FilePath); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}

	if err := replaceMetadataTx(ctx, tx, doc.ID, doc.Metadata); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	return nil
}

// Delete removes a document. A soft delete marks the row deleted but
// keeps it (and its FTS entry) for recovery; active-only filters hide
// it. A hard delete removes the row, its FTS entry, and all dependent
// metadata and summaries.
func (s *Store) Delete(ctx context.Context, id int64, hard bool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if hard {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents_fts WHERE rowid = ?`, id); err != nil {
			return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
		}
		res, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE documents SET status = ? WHERE id = ?`, StatusDeleted, id)
	}
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	if affected == 0 {
		return qerrors.NotFoundError(fmt.Sprintf("document %d not found", id))
	}

	if err := tx.Commit(); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	return nil
}

// DeleteByPath deletes the document stored under the given path.
func (s *Store) DeleteByPath(ctx context.Context, path string, hard bool) error {
	doc, err := s.GetByPath(ctx, path)
	if err != nil {
		return err
	}
	return s.Delete(ctx, doc.ID, hard)
}

const documentColumns = `id, file_path, file_name, file_type, content, content_hash,
	size_bytes, created_at, modified_at, indexed_at, status`

// GetByID returns the document with the given ID, any status.
func (s *Store) GetByID(ctx context.Context, id int64) (*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, qerrors.NotFoundError(fmt.Sprintf("document %d not found", id))
		}
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	if err := s.loadMetadata(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetByPath returns the document stored under the given path, any status.
func (s *Store) GetByPath(ctx context.Context, path string) (*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE file_path = ?`, path)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, qerrors.NotFoundError(fmt.Sprintf("document not found for path: %s", path))
		}
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	if err := s.loadMetadata(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns documents matching the options, ordered by path.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	status := opts.Status
	if status == "" {
		status = StatusActive
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE status = ?`
	args := []any{status}
	if opts.FileType != "" {
		query += ` AND file_type = ?`
		args = append(args, opts.FileType)
	}
	query += ` ORDER BY ` + orderColumn(opts.OrderBy)
	if opts.Descending {
		query += ` DESC`
	}
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	return docs, nil
}

// PathHashes returns a snapshot of path to content hash for all active
// documents. Change detection diffs this map against a fresh scan.
func (s *Store) PathHashes(ctx context.Context) (map[string]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, content_hash FROM documents WHERE status = ?`, StatusActive)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
		}
		hashes[path] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	return hashes, nil
}

// SuggestFileNames returns distinct active file names starting with
// prefix, in lexical order. The match is case-insensitive.
func (s *Store) SuggestFileNames(ctx context.Context, prefix string, limit int) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT file_name FROM documents
		WHERE status = ? AND file_name LIKE ? ESCAPE '\'
		ORDER BY file_name LIMIT ?`,
		StatusActive, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeTransaction, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var content, contentHash, createdAt, modifiedAt, indexedAt sql.NullString
	if err := row.Scan(&doc.ID, &doc.FilePath, &doc.FileName, &doc.FileType,
		&content, &contentHash, &doc.SizeBytes,
		&createdAt, &modifiedAt, &indexedAt, &doc.Status); err != nil {
		return nil, err
	}
	doc.Content = content.String
	doc.ContentHash = contentHash.String
	doc.CreatedAt = parseTime(createdAt.String)
	doc.ModifiedAt = parseTime(modifiedAt.String)
	doc.IndexedAt = parseTime(indexedAt.String)
	return &doc, nil
}

func (s *Store) loadMetadata(ctx context.Context, doc *Document) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM document_metadata WHERE document_id = ?`, doc.ID)
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return qerrors.Wrap(qerrors.ErrCodeTransaction, err)
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string)
		}
		doc.Metadata[k] = v.String
	}
	return rows.Err()
}
