// Package vault is the boundary to the host document collection: stat and
// heading metadata for a path, bulk enumeration for full rebuilds, and
// classified change notifications.
package vault

import (
	"errors"
	"sync"

	"github.com/hyperjump/shirabe/internal/models"
)

// ErrNotExist is returned when a path does not resolve against the vault.
// Stale queued changes hitting this are treated as already deleted.
var ErrNotExist = errors.New("vault: file does not exist")

// FileInfo is the stat metadata the vault supplies for a path.
type FileInfo struct {
	Extension    string
	Size         int64
	ModifiedTime int64 // unix nanoseconds
}

// Source supplies document metadata and bulk enumeration.
type Source interface {
	// Stat returns file metadata, or ErrNotExist.
	Stat(path string) (FileInfo, error)
	// Headings returns the ordered heading list for markdown-like
	// documents; empty for everything else.
	Headings(path string) ([]models.HeadingInfo, error)
	// List enumerates every indexable path, for full rebuilds.
	List() ([]string, error)
}

// MemorySource is an in-memory Source for tests and embedding hosts that
// manage their own collection.
type MemorySource struct {
	mu       sync.RWMutex
	files    map[string]FileInfo
	headings map[string][]models.HeadingInfo

	// call counters, for asserting that a journal-hydrated restart never
	// re-scans the collection
	StatCalls int
	ListCalls int
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		files:    make(map[string]FileInfo),
		headings: make(map[string][]models.HeadingInfo),
	}
}

// Put adds or replaces a file.
func (m *MemorySource) Put(path string, info FileInfo, headings []models.HeadingInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = info
	m.headings[path] = headings
}

// Delete removes a file.
func (m *MemorySource) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	delete(m.headings, path)
}

// Rename moves a file to a new path.
func (m *MemorySource) Rename(oldPath, newPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.files[oldPath]; ok {
		m.files[newPath] = info
		m.headings[newPath] = m.headings[oldPath]
		delete(m.files, oldPath)
		delete(m.headings, oldPath)
	}
}

// Stat implements Source.
func (m *MemorySource) Stat(path string) (FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatCalls++
	info, ok := m.files[path]
	if !ok {
		return FileInfo{}, ErrNotExist
	}
	return info, nil
}

// Headings implements Source.
func (m *MemorySource) Headings(path string) ([]models.HeadingInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[path]; !ok {
		return nil, ErrNotExist
	}
	return append([]models.HeadingInfo(nil), m.headings[path]...), nil
}

// List implements Source.
func (m *MemorySource) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	return paths, nil
}

var _ Source = (*MemorySource)(nil)
