// Package scanner walks directory trees and emits candidate files for
// indexing.
//
// Scanning streams results over a channel so indexing can begin before
// the walk finishes. Per-file errors (permission denied, races with
// deletion) are logged and skipped; they never abort a scan.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// hashChunkSize is the read size used when hashing file contents.
const hashChunkSize = 64 * 1024

// Record describes a file accepted by the scan policy.
type Record struct {
	// Path is the absolute file path.
	Path string

	// SizeBytes is the file size at scan time.
	SizeBytes int64

	// ModifiedAt is the file modification time at scan time.
	ModifiedAt time.Time

	// ContentHash is the hex-encoded SHA-256 of the file contents.
	ContentHash string
}

// Policy decides which files a scan accepts.
type Policy struct {
	// MaxFileSize is the largest acceptable file, in bytes.
	MaxFileSize int64

	// ExcludedExtensions are extensions never indexed (lowercase, with dot).
	ExcludedExtensions []string

	// ExcludedPaths are case-insensitive substrings; a path containing
	// any of them is rejected.
	ExcludedPaths []string

	// Supports reports whether a parser exists for the file. Nil means
	// all extensions are parseable.
	Supports func(path string) bool
}

// Scanner walks directories applying a scan policy.
type Scanner struct {
	policy Policy
	logger *slog.Logger

	excludedExts  map[string]struct{}
	excludedPaths []string
}

// New creates a scanner with the given policy.
func New(policy Policy, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}

	exts := make(map[string]struct{}, len(policy.ExcludedExtensions))
	for _, ext := range policy.ExcludedExtensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	paths := make([]string, len(policy.ExcludedPaths))
	for i, p := range policy.ExcludedPaths {
		paths[i] = strings.ToLower(p)
	}

	return &Scanner{
		policy:        policy,
		logger:        logger,
		excludedExts:  exts,
		excludedPaths: paths,
	}
}

// Scan walks the given directories and streams accepted files. The
// returned channel is closed when the walk completes or ctx is
// cancelled. When recursive is false only the top level of each
// directory is visited.
func (s *Scanner) Scan(ctx context.Context, dirs []string, recursive bool) <-chan Record {
	out := make(chan Record, 64)

	go func() {
		defer close(out)
		for _, dir := range dirs {
			if err := s.scanDir(ctx, dir, recursive, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("directory scan failed",
					slog.String("dir", dir),
					slog.String("error", err.Error()))
			}
		}
	}()

	return out
}

func (s *Scanner) scanDir(ctx context.Context, dir string, recursive bool, out chan<- Record) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger.Warn("walk error, skipping",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if !recursive && path != root {
				return filepath.SkipDir
			}
			if s.pathExcluded(path) {
				return filepath.SkipDir
			}
			return nil
		}

		rec, ok := s.evaluate(path, d)
		if !ok {
			return nil
		}

		hash, err := HashFile(path)
		if err != nil {
			s.logger.Warn("hash failed, skipping",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		rec.ContentHash = hash

		select {
		case out <- rec:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

// evaluate applies the acceptance policy to a single directory entry.
func (s *Scanner) evaluate(path string, d fs.DirEntry) (Record, bool) {
	// Symlinks are never followed.
	if d.Type()&fs.ModeSymlink != 0 {
		return Record{}, false
	}
	if !d.Type().IsRegular() {
		return Record{}, false
	}

	ext := strings.ToLower(filepath.Ext(path))
	if _, excluded := s.excludedExts[ext]; excluded {
		return Record{}, false
	}

	if s.policy.Supports != nil && !s.policy.Supports(path) {
		return Record{}, false
	}

	if s.pathExcluded(path) {
		return Record{}, false
	}

	info, err := d.Info()
	if err != nil {
		s.logger.Warn("stat failed, skipping",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return Record{}, false
	}

	if s.policy.MaxFileSize > 0 && info.Size() > s.policy.MaxFileSize {
		return Record{}, false
	}
	if info.Size() == 0 {
		return Record{}, false
	}

	return Record{
		Path:       path,
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
	}, true
}

// pathExcluded reports whether the path contains an excluded substring.
// Comparison is case-insensitive.
func (s *Scanner) pathExcluded(path string) bool {
	lower := strings.ToLower(path)
	for _, sub := range s.excludedPaths {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// HashFile computes the hex-encoded SHA-256 of a file's contents,
// reading in fixed-size chunks so large files never load fully into
// memory.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
