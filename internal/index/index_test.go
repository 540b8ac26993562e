package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/parser"
	"github.com/quarrysearch/quarry/internal/pipeline"
	"github.com/quarrysearch/quarry/internal/scanner"
	"github.com/quarrysearch/quarry/internal/store"
)

type fixture struct {
	dir     string
	store   *store.Store
	indexer *Indexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "quarry.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry := parser.DefaultRegistry()
	sc := scanner.New(scanner.Policy{
		MaxFileSize: 1 << 20,
		Supports:    registry.Supports,
	}, nil)
	pl := pipeline.New(registry, 4, time.Second, nil)

	return &fixture{
		dir:     t.TempDir(),
		store:   st,
		indexer: New(sc, pl, st, 10, nil),
	}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCreateIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, "a.txt", "alpha document")
	f.write(t, "sub/b.md", "bravo document")
	f.write(t, "ignored.png", "not text")

	var lastProcessed, lastTotal int
	stats, err := f.indexer.CreateIndex(ctx, []string{f.dir}, true,
		func(processed, total int, path string) {
			lastProcessed, lastTotal = processed, total
		})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 2, stats.IndexedFiles)
	assert.Zero(t, stats.FailedFiles)
	assert.Positive(t, stats.TotalSize)
	assert.Equal(t, 2, lastProcessed)
	assert.Equal(t, 2, lastTotal)

	rows, err := f.store.SearchFTS(ctx, `"bravo"`, store.SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCreateIndexParallel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		f.write(t, filepath.Join("d", string(rune('a'+i))+".txt"), "shared body text")
	}

	stats, err := f.indexer.CreateIndexParallel(ctx, []string{f.dir}, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, stats.IndexedFiles)

	dbStats, err := f.store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, dbStats.TotalDocuments)
}

func TestRefreshIndex_PurgeDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	removed := f.write(t, "removed.txt", "will vanish")
	_, err := f.indexer.CreateIndex(ctx, []string{f.dir}, true, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(removed))

	f.indexer.PurgeDeleted = true
	stats, err := f.indexer.RefreshIndex(ctx, []string{f.dir}, true, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DeletedFiles)

	// The row is gone entirely, not soft-deleted
	_, err = f.store.GetByPath(ctx, removed)
	assert.True(t, qerrors.IsNotFound(err))
}

func TestRefreshIndex_MixedChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, "kept.txt", "stable content")
	changed := f.write(t, "changed.txt", "first version")
	removed := f.write(t, "removed.txt", "will vanish")

	_, err := f.indexer.CreateIndex(ctx, []string{f.dir}, true, nil)
	require.NoError(t, err)

	// Mutate the tree
	require.NoError(t, os.WriteFile(changed, []byte("second version"), 0o644))
	require.NoError(t, os.Remove(removed))
	f.write(t, "fresh.txt", "brand new")

	stats, err := f.indexer.RefreshIndex(ctx, []string{f.dir}, true, false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.AddedFiles)
	assert.Equal(t, 1, stats.UpdatedFiles)
	assert.Equal(t, 1, stats.DeletedFiles)
	assert.Equal(t, 1, stats.SkippedFiles)
	assert.Equal(t, 2, stats.IndexedFiles)

	// The removed file is soft-deleted, not purged
	doc, err := f.store.GetByPath(ctx, removed)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDeleted, doc.Status)

	// Updated content is searchable, old content is not
	rows, err := f.store.SearchFTS(ctx, `"second"`, store.SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	rows, err = f.store.SearchFTS(ctx, `"first"`, store.SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRefreshIndex_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.write(t, "a.txt", "alpha")
	f.write(t, "b.txt", "bravo")

	_, err := f.indexer.CreateIndex(ctx, []string{f.dir}, true, nil)
	require.NoError(t, err)

	// Refreshing an unchanged tree does nothing
	stats, err := f.indexer.RefreshIndex(ctx, []string{f.dir}, true, true, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.AddedFiles)
	assert.Zero(t, stats.UpdatedFiles)
	assert.Zero(t, stats.DeletedFiles)
	assert.Equal(t, 2, stats.SkippedFiles)

	stats, err = f.indexer.RefreshIndex(ctx, []string{f.dir}, true, true, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.AddedFiles+stats.UpdatedFiles+stats.DeletedFiles)
}

func TestRefreshIndex_ProgressCoversAllChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	removed := f.write(t, "removed.txt", "going away")
	_, err := f.indexer.CreateIndex(ctx, []string{f.dir}, true, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(removed))
	f.write(t, "added.txt", "arriving")

	var seen []string
	stats, err := f.indexer.RefreshIndex(ctx, []string{f.dir}, true, false,
		func(processed, total int, path string) {
			assert.Equal(t, 2, total)
			seen = append(seen, filepath.Base(path))
		})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.AddedFiles)
	assert.Equal(t, 1, stats.DeletedFiles)
	assert.ElementsMatch(t, []string{"added.txt", "removed.txt"}, seen)
}

func TestRefreshIndex_ReactivatesSoftDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := f.write(t, "flicker.txt", "now you see me")
	_, err := f.indexer.CreateIndex(ctx, []string{f.dir}, true, nil)
	require.NoError(t, err)

	// File disappears, refresh soft-deletes it
	require.NoError(t, os.Remove(path))
	_, err = f.indexer.RefreshIndex(ctx, []string{f.dir}, true, false, nil)
	require.NoError(t, err)

	// File comes back with new content
	f.write(t, "flicker.txt", "now you see me again")
	stats, err := f.indexer.RefreshIndex(ctx, []string{f.dir}, true, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AddedFiles)
	assert.Zero(t, stats.FailedFiles)

	doc, err := f.store.GetByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, doc.Status)

	rows, err := f.store.SearchFTS(ctx, `"again"`, store.SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCreateIndex_EmptyDirectory(t *testing.T) {
	f := newFixture(t)

	stats, err := f.indexer.CreateIndex(context.Background(), []string{f.dir}, true, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalFiles)
	assert.Zero(t, stats.IndexedFiles)
}

func TestCreateIndex_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "content")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.indexer.CreateIndex(ctx, []string{f.dir}, true, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
