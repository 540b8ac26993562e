// Package store persists documents in SQLite with FTS5 full-text search.
//
// A Store owns one database file. Writes are serialized through a single
// connection; SQLite in WAL mode handles concurrent readers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// Document statuses.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// timeFormat is how timestamps are stored in the database. The width is
// fixed so stored values order lexicographically in SQL comparisons.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Document is a single indexed file.
type Document struct {
	ID          int64
	FilePath    string
	FileName    string
	FileType    string
	Content     string
	ContentHash string
	SizeBytes   int64
	CreatedAt   time.Time
	ModifiedAt  time.Time
	IndexedAt   time.Time
	Status      string

	// Metadata holds parser-provided key-value pairs.
	Metadata map[string]string
}

// DocumentStore is the persistence interface used by the pipeline and
// the query engine.
type DocumentStore interface {
	Insert(ctx context.Context, doc *Document) (int64, error)
	InsertBatch(ctx context.Context, docs []*Document) ([]int64, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id int64, hard bool) error
	DeleteByPath(ctx context.Context, path string, hard bool) error
	GetByID(ctx context.Context, id int64) (*Document, error)
	GetByPath(ctx context.Context, path string) (*Document, error)
	List(ctx context.Context, opts ListOptions) ([]*Document, error)
	PathHashes(ctx context.Context) (map[string]string, error)
	SearchFTS(ctx context.Context, match string, opts SearchOptions) ([]*SearchRow, error)
	CountFTS(ctx context.Context, match string, opts SearchOptions) (int, error)
	Statistics(ctx context.Context) (*Statistics, error)
	Close() error
}

// Store is the SQLite-backed document store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ DocumentStore = (*Store)(nil)

// Open opens (creating if needed) the document store at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, qerrors.Wrap(qerrors.ErrCodeFileRead, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeCorruptStore,
			fmt.Sprintf("open database %s: %v", path, err), err)
	}

	// Single connection: SQLite allows one writer, and sharing a
	// connection avoids SQLITE_BUSY between our own statements.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, logger: logger}

	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("store opened", slog.String("path", path))
	return s, nil
}

// configure applies connection pragmas.
func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return qerrors.New(qerrors.ErrCodeCorruptStore,
				fmt.Sprintf("apply %s: %v", p, err), err)
		}
	}
	return nil
}

// migrate creates the schema if it does not exist.
func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT NOT NULL UNIQUE,
	file_name TEXT NOT NULL,
	file_type TEXT NOT NULL,
	content TEXT,
	content_hash TEXT,
	size_bytes INTEGER,
	created_at TEXT,
	modified_at TEXT,
	indexed_at TEXT,
	status TEXT NOT NULL DEFAULT 'active'
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	content,
	file_name,
	file_path UNINDEXED,
	tokenize='porter unicode61 remove_diacritics 2'
);

CREATE TABLE IF NOT EXISTS document_metadata (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	value TEXT,
	UNIQUE(document_id, key)
);

CREATE TABLE IF NOT EXISTS document_summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL UNIQUE REFERENCES documents(id) ON DELETE CASCADE,
	summary TEXT NOT NULL,
	key_points TEXT,
	entities TEXT,
	generated_at TEXT
);

CREATE TABLE IF NOT EXISTS index_config (
	key TEXT PRIMARY KEY,
	value TEXT,
	updated_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_documents_file_path ON documents(file_path);
CREATE INDEX IF NOT EXISTS idx_documents_file_type ON documents(file_type);
CREATE INDEX IF NOT EXISTS idx_documents_modified_at ON documents(modified_at);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_metadata_key ON document_metadata(key);
`
	if _, err := s.db.Exec(schema); err != nil {
		return qerrors.New(qerrors.ErrCodeCorruptStore,
			fmt.Sprintf("create schema: %v", err), err)
	}
	return nil
}

// Close closes the store. Further operations fail with a store-closed
// error.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// checkOpen returns an error if the store is closed.
func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return qerrors.New(qerrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	return nil
}

// isUniquePathViolation reports whether err is the UNIQUE constraint
// failure on documents.file_path.
func isUniquePathViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: documents.file_path")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// Legacy rows written by SQLite's CURRENT_TIMESTAMP.
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
