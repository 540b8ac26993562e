package parser

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry maps file extensions to parsers.
//
// Registration happens once at startup; lookups afterwards are
// concurrent-safe reads.
type Registry struct {
	mu      sync.RWMutex
	byExt   map[string]Parser
	parsers []Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt: make(map[string]Parser),
	}
}

// DefaultRegistry returns a registry with the built-in parsers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewTextParser())
	return r
}

// Register adds a parser for all of its extensions. A later registration
// for the same extension wins.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parsers = append(r.parsers, p)
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// Lookup returns the parser for the given file path, or nil if no
// parser handles its extension.
func (r *Registry) Lookup(path string) Parser {
	ext := strings.ToLower(filepath.Ext(path))

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byExt[ext]
}

// Supports reports whether any registered parser handles the file.
func (r *Registry) Supports(path string) bool {
	return r.Lookup(path) != nil
}

// Extensions returns all supported extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
