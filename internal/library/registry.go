// Package library manages the registry of index libraries.
//
// Each library is an independent document store on disk. The registry
// is a JSON manifest shared by every process; a file lock serializes
// manifest access across processes, and a mutex serializes it within
// one.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// DefaultColor is assigned to libraries created without one.
const DefaultColor = "#4CAF50"

// lockTimeout bounds how long a process waits for the manifest lock.
const lockTimeout = 10 * time.Second

// Library describes one registered index library.
type Library struct {
	Name        string    `json:"name"`
	StoragePath string    `json:"storagePath"`
	Created     time.Time `json:"created"`
	LastUsed    time.Time `json:"lastUsed"`
	DocCount    int       `json:"docCount"`
	SizeBytes   int64     `json:"sizeBytes"`
	Enabled     bool      `json:"enabled"`
	Color       string    `json:"color"`
}

// manifest is the on-disk registry format.
type manifest struct {
	DefaultLibrary string     `json:"defaultLibrary"`
	Libraries      []*Library `json:"libraries"`
}

// Registry reads and mutates the library manifest.
type Registry struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger

	mu sync.Mutex
}

// NewRegistry creates a registry backed by the manifest at path.
func NewRegistry(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}
}

// DefaultManifestPath returns ~/.quarry/libraries.json.
func DefaultManifestPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".quarry", "libraries.json")
	}
	return filepath.Join(home, ".quarry", "libraries.json")
}

// withLock runs fn with both the in-process mutex and the cross-process
// file lock held.
func (r *Registry) withLock(fn func(m *manifest) (bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeFileRead, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	ok, err := r.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil || !ok {
		return qerrors.New(qerrors.ErrCodeInternal,
			fmt.Sprintf("acquire manifest lock: %v", err), err)
	}
	defer func() { _ = r.lock.Unlock() }()

	m, err := r.load()
	if err != nil {
		return err
	}

	dirty, err := fn(m)
	if err != nil {
		return err
	}
	if dirty {
		return r.save(m)
	}
	return nil
}

func (r *Registry) load() (*manifest, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return &manifest{}, nil
	}
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeFileRead, err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, qerrors.New(qerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("corrupt library manifest %s: %v", r.path, err), err)
	}
	return &m, nil
}

// save writes the manifest atomically via a rename.
func (r *Registry) save(m *manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return qerrors.InternalError("encode library manifest", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeFileRead, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeFileRead, err)
	}
	return nil
}

func (m *manifest) find(name string) *Library {
	for _, lib := range m.Libraries {
		if lib.Name == name {
			return lib
		}
	}
	return nil
}

// Add registers a new library. The first library registered becomes
// the default; setDefault makes any later addition the default too.
// Names and storage paths must be unique.
func (r *Registry) Add(name, storagePath, color string, setDefault bool) (*Library, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, qerrors.ValidationError("library name is empty")
	}
	if storagePath == "" {
		return nil, qerrors.ValidationError("library storage path is empty")
	}
	if color == "" {
		color = DefaultColor
	}

	lib := &Library{
		Name:        name,
		StoragePath: storagePath,
		Created:     time.Now().UTC(),
		LastUsed:    time.Now().UTC(),
		Enabled:     true,
		Color:       color,
	}

	err := r.withLock(func(m *manifest) (bool, error) {
		if m.find(name) != nil {
			return false, qerrors.New(qerrors.ErrCodeLibraryExists,
				fmt.Sprintf("library already exists: %s", name), nil)
		}
		for _, existing := range m.Libraries {
			if existing.StoragePath == storagePath {
				return false, qerrors.ValidationError(
					fmt.Sprintf("storage path already registered to library %q: %s",
						existing.Name, storagePath))
			}
		}

		m.Libraries = append(m.Libraries, lib)
		if setDefault || m.DefaultLibrary == "" {
			m.DefaultLibrary = name
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("library registered",
		slog.String("name", name),
		slog.String("path", storagePath))
	return lib, nil
}

// Remove unregisters a library. The store file itself is left on disk.
// If the removed library was the default, the first remaining library
// becomes the default.
func (r *Registry) Remove(name string) error {
	return r.withLock(func(m *manifest) (bool, error) {
		idx := -1
		for i, lib := range m.Libraries {
			if lib.Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false, unknownLibrary(name)
		}

		m.Libraries = append(m.Libraries[:idx], m.Libraries[idx+1:]...)
		if m.DefaultLibrary == name {
			m.DefaultLibrary = ""
			if len(m.Libraries) > 0 {
				m.DefaultLibrary = m.Libraries[0].Name
			}
		}
		return true, nil
	})
}

// Get returns one library by name.
func (r *Registry) Get(name string) (*Library, error) {
	var out *Library
	err := r.withLock(func(m *manifest) (bool, error) {
		lib := m.find(name)
		if lib == nil {
			return false, unknownLibrary(name)
		}
		cp := *lib
		out = &cp
		return false, nil
	})
	return out, err
}

// List returns all libraries sorted by name.
func (r *Registry) List() ([]*Library, error) {
	var out []*Library
	err := r.withLock(func(m *manifest) (bool, error) {
		for _, lib := range m.Libraries {
			cp := *lib
			out = append(out, &cp)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Enabled returns the enabled libraries sorted by name.
func (r *Registry) Enabled() ([]*Library, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, lib := range all {
		if lib.Enabled {
			enabled = append(enabled, lib)
		}
	}
	return enabled, nil
}

// SetEnabled toggles one library's participation in multi-library search.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	return r.withLock(func(m *manifest) (bool, error) {
		lib := m.find(name)
		if lib == nil {
			return false, unknownLibrary(name)
		}
		if lib.Enabled == enabled {
			return false, nil
		}
		lib.Enabled = enabled
		return true, nil
	})
}

// EnableAll enables every registered library.
func (r *Registry) EnableAll() error {
	return r.setAll(true)
}

// DisableAll disables every registered library.
func (r *Registry) DisableAll() error {
	return r.setAll(false)
}

func (r *Registry) setAll(enabled bool) error {
	return r.withLock(func(m *manifest) (bool, error) {
		dirty := false
		for _, lib := range m.Libraries {
			if lib.Enabled != enabled {
				lib.Enabled = enabled
				dirty = true
			}
		}
		return dirty, nil
	})
}

// UpdateStats records a library's document count and store size, and
// touches its last-used time.
func (r *Registry) UpdateStats(name string, docCount int, sizeBytes int64) error {
	return r.withLock(func(m *manifest) (bool, error) {
		lib := m.find(name)
		if lib == nil {
			return false, unknownLibrary(name)
		}
		lib.DocCount = docCount
		lib.SizeBytes = sizeBytes
		lib.LastUsed = time.Now().UTC()
		return true, nil
	})
}

// SetDefault marks a library as the default for single-library commands.
func (r *Registry) SetDefault(name string) error {
	return r.withLock(func(m *manifest) (bool, error) {
		if m.find(name) == nil {
			return false, unknownLibrary(name)
		}
		if m.DefaultLibrary == name {
			return false, nil
		}
		m.DefaultLibrary = name
		return true, nil
	})
}

// Default returns the default library, or a not-found error when no
// libraries are registered.
func (r *Registry) Default() (*Library, error) {
	var out *Library
	err := r.withLock(func(m *manifest) (bool, error) {
		if m.DefaultLibrary == "" {
			return false, qerrors.NotFoundError("no default library configured")
		}
		lib := m.find(m.DefaultLibrary)
		if lib == nil {
			return false, unknownLibrary(m.DefaultLibrary)
		}
		cp := *lib
		out = &cp
		return false, nil
	})
	return out, err
}

// SelectionSummary renders a short human-readable account of which
// libraries are enabled, e.g. "2 of 3 libraries enabled (archive, work)".
func (r *Registry) SelectionSummary() (string, error) {
	all, err := r.List()
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "no libraries registered", nil
	}

	var names []string
	for _, lib := range all {
		if lib.Enabled {
			names = append(names, lib.Name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("0 of %d libraries enabled", len(all)), nil
	}
	return fmt.Sprintf("%d of %d libraries enabled (%s)",
		len(names), len(all), strings.Join(names, ", ")), nil
}

func unknownLibrary(name string) error {
	return qerrors.New(qerrors.ErrCodeLibraryUnknown,
		fmt.Sprintf("unknown library: %s", name), nil)
}
