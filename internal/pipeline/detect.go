// Package pipeline turns scanned files into stored documents.
//
// It covers change detection against the store, serial and parallel
// parse execution, and batched writes.
package pipeline

import (
	"github.com/quarrysearch/quarry/internal/scanner"
)

// Changes partitions a scan against the store's current contents.
// Every scanned file lands in exactly one of Added, Updated, or
// Unchanged; Deleted holds stored paths the scan no longer saw.
type Changes struct {
	Added     []scanner.Record
	Updated   []scanner.Record
	Unchanged []scanner.Record
	Deleted   []string
}

// Total returns the number of files requiring work.
func (c *Changes) Total() int {
	return len(c.Added) + len(c.Updated) + len(c.Deleted)
}

// Detect compares scanned files against stored path-to-hash pairs.
// Paths compare byte-exact; content comparison uses the hash alone, so
// a touched file with identical content is unchanged.
func Detect(stored map[string]string, scanned []scanner.Record) *Changes {
	changes := &Changes{}
	seen := make(map[string]struct{}, len(scanned))

	for _, rec := range scanned {
		seen[rec.Path] = struct{}{}
		hash, ok := stored[rec.Path]
		switch {
		case !ok:
			changes.Added = append(changes.Added, rec)
		case hash != rec.ContentHash:
			changes.Updated = append(changes.Updated, rec)
		default:
			changes.Unchanged = append(changes.Unchanged, rec)
		}
	}

	for path := range stored {
		if _, ok := seen[path]; !ok {
			changes.Deleted = append(changes.Deleted, path)
		}
	}
	return changes
}
