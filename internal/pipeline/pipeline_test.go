package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
	"github.com/quarrysearch/quarry/internal/parser"
	"github.com/quarrysearch/quarry/internal/scanner"
	"github.com/quarrysearch/quarry/internal/store"
)

func record(t *testing.T, dir, name, content string) scanner.Record {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	hash, err := scanner.HashFile(path)
	require.NoError(t, err)
	return scanner.Record{
		Path:        path,
		SizeBytes:   int64(len(content)),
		ModifiedAt:  time.Now(),
		ContentHash: hash,
	}
}

func TestDetect_Partition(t *testing.T) {
	stored := map[string]string{
		"/data/kept.txt":    "h1",
		"/data/changed.txt": "h2",
		"/data/removed.txt": "h3",
	}
	scanned := []scanner.Record{
		{Path: "/data/kept.txt", ContentHash: "h1"},
		{Path: "/data/changed.txt", ContentHash: "h2-new"},
		{Path: "/data/fresh.txt", ContentHash: "h4"},
	}

	changes := Detect(stored, scanned)

	assert.Len(t, changes.Added, 1)
	assert.Equal(t, "/data/fresh.txt", changes.Added[0].Path)
	assert.Len(t, changes.Updated, 1)
	assert.Equal(t, "/data/changed.txt", changes.Updated[0].Path)
	assert.Len(t, changes.Unchanged, 1)
	assert.Equal(t, []string{"/data/removed.txt"}, changes.Deleted)

	// Every scanned file lands in exactly one partition
	assert.Equal(t, len(scanned),
		len(changes.Added)+len(changes.Updated)+len(changes.Unchanged))
	assert.Equal(t, 2, changes.Total())
}

func TestDetect_Empty(t *testing.T) {
	changes := Detect(nil, nil)
	assert.Zero(t, changes.Total())
	assert.Empty(t, changes.Unchanged)
}

func TestRun_Serial(t *testing.T) {
	dir := t.TempDir()
	records := []scanner.Record{
		record(t, dir, "a.txt", "alpha content"),
		record(t, dir, "b.txt", "bravo content"),
	}

	p := New(parser.DefaultRegistry(), 1, time.Second, nil)

	var progressCalls int
	docs, failures, err := p.Run(context.Background(), records, func(processed, total int, path string) {
		progressCalls++
		assert.Equal(t, progressCalls, processed)
		assert.Equal(t, 2, total)
	})

	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, docs, 2)
	assert.Equal(t, 2, progressCalls)
	assert.Equal(t, "alpha content", docs[0].Content)
	assert.Equal(t, ".txt", docs[0].FileType)
	assert.Equal(t, records[0].ContentHash, docs[0].ContentHash)
}

func TestRun_CollectsFailures(t *testing.T) {
	dir := t.TempDir()
	records := []scanner.Record{
		record(t, dir, "good.txt", "fine"),
		{Path: filepath.Join(dir, "no-parser.xyz")},
		{Path: filepath.Join(dir, "vanished.txt"), ContentHash: "h"},
	}

	p := New(parser.DefaultRegistry(), 1, time.Second, nil)
	docs, failures, err := p.Run(context.Background(), records, nil)

	require.NoError(t, err)
	assert.Len(t, docs, 1)
	require.Len(t, failures, 2)
	assert.Equal(t, qerrors.ErrCodeNoParser, qerrors.GetCode(failures[0].Err))
	assert.Equal(t, qerrors.ErrCodeFileNotFound, qerrors.GetCode(failures[1].Err))
}

func TestRunParallel_MatchesSerial(t *testing.T) {
	dir := t.TempDir()
	var records []scanner.Record
	for _, name := range []string{"a.txt", "b.txt", "c.md", "d.txt", "e.log"} {
		records = append(records, record(t, dir, name, "content of "+name))
	}
	records = append(records, scanner.Record{Path: filepath.Join(dir, "bad.xyz")})

	p := New(parser.DefaultRegistry(), 4, time.Second, nil)

	serialDocs, serialFailures, err := p.Run(context.Background(), records, nil)
	require.NoError(t, err)
	parallelDocs, parallelFailures, err := p.RunParallel(context.Background(), records, nil)
	require.NoError(t, err)

	// Same documents regardless of execution mode, ordering aside
	assert.Equal(t, len(serialDocs), len(parallelDocs))
	assert.Equal(t, len(serialFailures), len(parallelFailures))
	assert.ElementsMatch(t, docPaths(serialDocs), docPaths(parallelDocs))
}

func docPaths(docs []*store.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.FilePath
	}
	sort.Strings(out)
	return out
}

func TestRunParallel_ProgressSerialized(t *testing.T) {
	dir := t.TempDir()
	var records []scanner.Record
	for i := 0; i < 20; i++ {
		records = append(records, record(t, dir, filepath.Join("f"+string(rune('a'+i))+".txt"), "x"))
	}

	p := New(parser.DefaultRegistry(), 8, time.Second, nil)

	var inCallback atomic.Int32
	var calls atomic.Int32
	_, _, err := p.RunParallel(context.Background(), records, func(processed, total int, path string) {
		require.Equal(t, int32(1), inCallback.Add(1), "progress callback ran concurrently")
		calls.Add(1)
		inCallback.Add(-1)
	})

	require.NoError(t, err)
	assert.Equal(t, int32(20), calls.Load())
}

type slowParser struct{}

func (slowParser) Name() string         { return "slow" }
func (slowParser) Extensions() []string { return []string{".slow"} }
func (slowParser) Parse(ctx context.Context, path string) (*parser.Result, error) {
	select {
	case <-time.After(5 * time.Second):
		return &parser.Result{Success: true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRunParallel_TaskTimeout(t *testing.T) {
	registry := parser.NewRegistry()
	registry.Register(slowParser{})

	p := New(registry, 2, 50*time.Millisecond, nil)
	records := []scanner.Record{{Path: "/data/stuck.slow"}}

	docs, failures, err := p.RunParallel(context.Background(), records, nil)

	// A timed-out task becomes a per-file failure, not a run error
	require.NoError(t, err)
	assert.Empty(t, docs)
	require.Len(t, failures, 1)
	assert.True(t, qerrors.IsTimeout(failures[0].Err))
}

func TestRunParallel_Cancellation(t *testing.T) {
	registry := parser.NewRegistry()
	registry.Register(slowParser{})

	p := New(registry, 2, time.Minute, nil)
	records := []scanner.Record{{Path: "/a.slow"}, {Path: "/b.slow"}, {Path: "/c.slow"}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, _, err := p.RunParallel(ctx, records, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchWriter_FlushBoundaries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	w := NewBatchWriter(st, 3, nil)
	for i, name := range []string{"a", "b", "c", "d"} {
		doc := &store.Document{
			FilePath: "/data/" + name + ".txt",
			FileName: name + ".txt",
			FileType: ".txt",
			Content:  "content",
		}
		require.NoError(t, w.Add(ctx, doc))
		if i < 2 {
			assert.Equal(t, 0, w.Written(), "no commit before batch fills")
		}
	}

	// Three documents committed at the batch boundary, one buffered
	assert.Equal(t, 3, w.Written())
	require.NoError(t, w.Flush(ctx))
	assert.Equal(t, 4, w.Written())

	stats, err := st.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalDocuments)
}

func TestBatchWriter_RowFallbackSalvagesBatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.Insert(ctx, &store.Document{
		FilePath: "/data/dup.txt", FileName: "dup.txt", FileType: ".txt", Content: "existing",
	})
	require.NoError(t, err)

	w := NewBatchWriter(st, 10, nil)
	for _, name := range []string{"new1", "dup", "new2"} {
		require.NoError(t, w.Add(ctx, &store.Document{
			FilePath: "/data/" + name + ".txt",
			FileName: name + ".txt",
			FileType: ".txt",
			Content:  "fresh",
		}))
	}
	require.NoError(t, w.Flush(ctx))

	// The duplicate is reported; its batchmates still land
	assert.Equal(t, 2, w.Written())
	require.Len(t, w.Failures(), 1)
	assert.Equal(t, "/data/dup.txt", w.Failures()[0].Path)
	assert.True(t, qerrors.IsDuplicatePath(w.Failures()[0].Err))

	_, err = st.GetByPath(ctx, "/data/new1.txt")
	assert.NoError(t, err)
	_, err = st.GetByPath(ctx, "/data/new2.txt")
	assert.NoError(t, err)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "quarry.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}
