package search

import (
	"sort"
	"strings"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// Sort fields.
const (
	SortByRank     = "rank"
	SortByName     = "name"
	SortByPath     = "path"
	SortBySize     = "size"
	SortByModified = "modified"
)

// Sort orders results in place by the given field. Rank sorts
// ascending by default since lower bm25 scores are more relevant.
func Sort(results []*Result, field string, descending bool) error {
	var less func(a, b *Result) bool
	switch field {
	case SortByRank, "":
		less = func(a, b *Result) bool { return a.Rank < b.Rank }
	case SortByName:
		less = func(a, b *Result) bool {
			return strings.ToLower(a.FileName) < strings.ToLower(b.FileName)
		}
	case SortByPath:
		less = func(a, b *Result) bool { return a.FilePath < b.FilePath }
	case SortBySize:
		less = func(a, b *Result) bool { return a.SizeBytes < b.SizeBytes }
	case SortByModified:
		less = func(a, b *Result) bool { return a.ModifiedAt.Before(b.ModifiedAt) }
	default:
		return qerrors.ValidationError("invalid sort field: " + field)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if descending {
			return less(results[j], results[i])
		}
		return less(results[i], results[j])
	})
	return nil
}
