package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "quarry.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDoc(path, content string) *Document {
	return &Document{
		FilePath:    path,
		FileName:    filepath.Base(path),
		FileType:    filepath.Ext(path),
		Content:     content,
		ContentHash: "hash-" + path,
		SizeBytes:   int64(len(content)),
		ModifiedAt:  time.Now().Add(-time.Hour),
	}
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given a document with metadata
	doc := testDoc("/data/notes.txt", "meeting notes about the quarterly budget")
	doc.Metadata = map[string]string{"encoding": "utf-8", "line_count": "1"}

	// When inserting it
	id, err := s.Insert(ctx, doc)
	require.NoError(t, err)
	assert.Positive(t, id)

	// Then it can be fetched by ID and by path
	byID, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "/data/notes.txt", byID.FilePath)
	assert.Equal(t, StatusActive, byID.Status)
	assert.Equal(t, "utf-8", byID.Metadata["encoding"])

	byPath, err := s.GetByPath(ctx, "/data/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, id, byPath.ID)
	assert.False(t, byPath.IndexedAt.IsZero())
}

func TestInsertDuplicatePath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testDoc("/data/a.txt", "first"))
	require.NoError(t, err)

	_, err = s.Insert(ctx, testDoc("/data/a.txt", "second"))
	require.Error(t, err)
	assert.True(t, qerrors.IsDuplicatePath(err))
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetByID(ctx, 42)
	assert.True(t, qerrors.IsNotFound(err))

	_, err = s.GetByPath(ctx, "/nowhere.txt")
	assert.True(t, qerrors.IsNotFound(err))
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("/data/a.txt", "original content about cats")
	_, err := s.Insert(ctx, doc)
	require.NoError(t, err)

	// When updating content and hash
	doc.Content = "rewritten content about dogs"
	doc.ContentHash = "hash-v2"
	doc.Metadata = map[string]string{"line_count": "2"}
	require.NoError(t, s.Update(ctx, doc))

	// Then both the row and the FTS index reflect the new content
	got, err := s.GetByPath(ctx, "/data/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hash-v2", got.ContentHash)
	assert.Equal(t, "2", got.Metadata["line_count"])

	rows, err := s.SearchFTS(ctx, `"dogs"`, SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = s.SearchFTS(ctx, `"cats"`, SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUpdateMissingDocument(t *testing.T) {
	s := newTestStore(t)
	doc := testDoc("/data/missing.txt", "content")
	err := s.Update(context.Background(), doc)
	assert.True(t, qerrors.IsNotFound(err))
}

func TestSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testDoc("/data/a.txt", "searchable words here"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id, false))

	// Row survives with deleted status
	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, got.Status)

	// Hidden from search and statistics
	rows, err := s.SearchFTS(ctx, `"searchable"`, SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalDocuments)
	assert.Equal(t, 1, stats.DeletedDocuments)
}

func TestHardDeleteCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("/data/a.txt", "content to purge")
	doc.Metadata = map[string]string{"k": "v"}
	id, err := s.Insert(ctx, doc)
	require.NoError(t, err)
	require.NoError(t, s.SaveSummary(ctx, &Summary{DocumentID: id, Text: "a summary"}))

	require.NoError(t, s.Delete(ctx, id, true))

	_, err = s.GetByID(ctx, id)
	assert.True(t, qerrors.IsNotFound(err))

	_, err = s.GetSummary(ctx, id)
	assert.True(t, qerrors.IsNotFound(err))

	rows, err := s.SearchFTS(ctx, `"purge"`, SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Path is free for reuse after a hard delete
	_, err = s.Insert(ctx, testDoc("/data/a.txt", "fresh content"))
	assert.NoError(t, err)
}

func TestDeleteNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete(context.Background(), 99, true)
	assert.True(t, qerrors.IsNotFound(err))
}

func TestInsertBatchAtomicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testDoc("/data/dup.txt", "existing"))
	require.NoError(t, err)

	// A batch containing a duplicate fails entirely
	batch := []*Document{
		testDoc("/data/new1.txt", "one"),
		testDoc("/data/dup.txt", "collides"),
		testDoc("/data/new2.txt", "two"),
	}
	_, err = s.InsertBatch(ctx, batch)
	require.Error(t, err)
	assert.True(t, qerrors.IsDuplicatePath(err))

	_, err = s.GetByPath(ctx, "/data/new1.txt")
	assert.True(t, qerrors.IsNotFound(err))
}

func TestInsertBatchThroughput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docs := make([]*Document, 500)
	for i := range docs {
		docs[i] = testDoc(fmt.Sprintf("/data/file%04d.txt", i),
			fmt.Sprintf("document body number %d with some shared words", i))
	}

	start := time.Now()
	ids, err := s.InsertBatch(ctx, docs)
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Len(t, ids, 500)
	// Batched writes must sustain well over 100 documents per second.
	assert.Less(t, elapsed, 5*time.Second)

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500, stats.TotalDocuments)
	assert.False(t, stats.LastIndexedAt.IsZero())
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testDoc("/data/a.txt", "short"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, testDoc("/data/b.md", "medium length"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, testDoc("/data/c.txt", "the longest content of the three"))
	require.NoError(t, err)

	all, err := s.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	txt, err := s.List(ctx, ListOptions{FileType: ".txt"})
	require.NoError(t, err)
	assert.Len(t, txt, 2)

	page, err := s.List(ctx, ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "/data/c.txt", page[0].FilePath)

	bySizeDesc, err := s.List(ctx, ListOptions{OrderBy: "size", Descending: true})
	require.NoError(t, err)
	require.Len(t, bySizeDesc, 3)
	assert.Equal(t, "/data/c.txt", bySizeDesc[0].FilePath)
	assert.Equal(t, "/data/a.txt", bySizeDesc[2].FilePath)
}

func TestPathHashes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testDoc("/data/a.txt", "a"))
	require.NoError(t, err)
	id, err := s.Insert(ctx, testDoc("/data/b.txt", "b"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id, false))

	hashes, err := s.PathHashes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/data/a.txt": "hash-/data/a.txt"}, hashes)
}

func TestSearchFTSRankingAndSnippet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testDoc("/data/dense.txt",
		"quarry quarry quarry stone extraction from the quarry"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, testDoc("/data/sparse.txt",
		"a long document mentioning a quarry once among many other unrelated words about weather and cooking"))
	require.NoError(t, err)

	rows, err := s.SearchFTS(ctx, `"quarry"`, SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Denser match ranks first; bm25 ranks ascending
	assert.Equal(t, "/data/dense.txt", rows[0].FilePath)
	assert.LessOrEqual(t, rows[0].Rank, rows[1].Rank)
	assert.Contains(t, rows[0].Snippet, "<mark>quarry</mark>")

	count, err := s.CountFTS(ctx, `"quarry"`, SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSearchFTSFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := testDoc("/data/old.txt", "shared token alpha")
	old.ModifiedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	old.SizeBytes = 10
	_, err := s.Insert(ctx, old)
	require.NoError(t, err)

	recent := testDoc("/data/recent.md", "shared token alpha")
	recent.ModifiedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent.SizeBytes = 5000
	_, err = s.Insert(ctx, recent)
	require.NoError(t, err)

	rows, err := s.SearchFTS(ctx, `"alpha"`, SearchOptions{
		FileTypes: []string{".md"},
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "/data/recent.md", rows[0].FilePath)

	rows, err = s.SearchFTS(ctx, `"alpha"`, SearchOptions{
		ModifiedAfter: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "/data/recent.md", rows[0].FilePath)

	rows, err = s.SearchFTS(ctx, `"alpha"`, SearchOptions{
		MaxSize: 100,
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "/data/old.txt", rows[0].FilePath)
}

func TestSummaryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, testDoc("/data/a.txt", "content"))
	require.NoError(t, err)

	require.NoError(t, s.SaveSummary(ctx, &Summary{
		DocumentID: id, Text: "first", KeyPoints: `["a"]`,
	}))
	require.NoError(t, s.SaveSummary(ctx, &Summary{
		DocumentID: id, Text: "second", KeyPoints: `["b","c"]`, Entities: `["acme"]`,
	}))

	got, err := s.GetSummary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Text)
	assert.Equal(t, `["b","c"]`, got.KeyPoints)
	assert.Equal(t, `["acme"]`, got.Entities)
	assert.False(t, got.GeneratedAt.IsZero())
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetConfig(ctx, "schema_version")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetConfig(ctx, "schema_version", "1"))
	require.NoError(t, s.SetConfig(ctx, "schema_version", "2"))

	v, err = s.GetConfig(ctx, "schema_version")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestCheckIntegrityAndVacuum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testDoc("/data/a.txt", "content"))
	require.NoError(t, err)

	assert.NoError(t, s.CheckIntegrity(ctx))
	assert.NoError(t, s.Vacuum(ctx))
}

func TestInfo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testDoc("/data/a.txt", "content"))
	require.NoError(t, err)

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.path, info.Path)
	assert.Greater(t, info.SizeBytes, int64(0))
	assert.Greater(t, info.PageSize, int64(0))
	assert.Greater(t, info.PageCount, int64(0))
	assert.Equal(t, "wal", info.JournalMode)
}

func TestFileTypeBreakdown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testDoc("/data/a.txt", "aaaa"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, testDoc("/data/b.txt", "bbbbbbbb"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, testDoc("/data/c.md", "cc"))
	require.NoError(t, err)
	deleted, err := s.Insert(ctx, testDoc("/data/d.md", "dd"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, deleted, false))

	breakdown, err := s.FileTypeBreakdown(ctx)
	require.NoError(t, err)
	require.Len(t, breakdown, 2)

	txt := breakdown[".txt"]
	assert.Equal(t, 2, txt.Count)
	assert.Equal(t, int64(12), txt.TotalBytes)
	assert.Equal(t, int64(6), txt.AvgBytes)
	assert.InDelta(t, 66.7, txt.Percent, 0.1)

	md := breakdown[".md"]
	assert.Equal(t, 1, md.Count)
	assert.InDelta(t, 33.3, md.Percent, 0.1)
}

func TestSuggestFileNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, path := range []string{"/data/report.txt", "/data/readme.md", "/notes/report.txt", "/data/todo.txt"} {
		doc := testDoc(path, "content of "+path)
		doc.ContentHash = "hash-" + path
		_, err := s.Insert(ctx, doc)
		require.NoError(t, err)
	}

	names, err := s.SuggestFileNames(ctx, "re", 10)
	require.NoError(t, err)
	// Distinct names in lexical order; report.txt appears once.
	assert.Equal(t, []string{"readme.md", "report.txt"}, names)

	names, err = s.SuggestFileNames(ctx, "re", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"readme.md"}, names)

	names, err = s.SuggestFileNames(ctx, "zz", 10)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestBackup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, testDoc("/data/a.txt", "backed up content"))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, s.Backup(ctx, dest))

	// Backing up onto an existing file is rejected
	err = s.Backup(ctx, dest)
	assert.True(t, qerrors.IsValidation(err))

	// The copy opens as a working store
	restored, err := Open(dest, nil)
	require.NoError(t, err)
	defer func() { _ = restored.Close() }()

	doc, err := restored.GetByPath(ctx, "/data/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "backed up content", doc.Content)
}

func TestClosedStore(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Insert(context.Background(), testDoc("/data/a.txt", "x"))
	assert.Equal(t, qerrors.ErrCodeStoreClosed, qerrors.GetCode(err))

	// Close is idempotent
	assert.NoError(t, s.Close())
}
