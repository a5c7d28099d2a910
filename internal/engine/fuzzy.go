package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"
)

// FuzzyEngine implements Engine with sahilm/fuzzy: subsequence matching that
// tolerates typos and partial names. The whole index is the record slice
// itself, so snapshots are just the records serialized.
type FuzzyEngine struct {
	mu   sync.RWMutex
	recs map[Kind][]Record
}

// NewFuzzyEngine creates an empty fuzzy engine.
func NewFuzzyEngine() *FuzzyEngine {
	return &FuzzyEngine{recs: make(map[Kind][]Record)}
}

// Name implements Engine.
func (e *FuzzyEngine) Name() Name { return Fuse }

// Set implements Engine.
func (e *FuzzyEngine) Set(kind Kind, recs []Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recs[kind] = append([]Record(nil), recs...)
}

// Add implements Engine.
func (e *FuzzyEngine) Add(kind Kind, recs []Record) {
	if len(recs) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	replaced := make(map[uint32]struct{}, len(recs))
	for _, r := range recs {
		replaced[r.ID] = struct{}{}
	}
	// Build a fresh slice: published slices are never mutated, so a Search
	// holding a snapshot reads consistent records without the lock.
	kept := make([]Record, 0, len(e.recs[kind])+len(recs))
	for _, r := range e.recs[kind] {
		if _, ok := replaced[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	e.recs[kind] = append(kept, recs...)
}

// Remove implements Engine.
func (e *FuzzyEngine) Remove(kind Kind, ids []uint32) {
	if len(ids) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	drop := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := make([]Record, 0, len(e.recs[kind]))
	for _, r := range e.recs[kind] {
		if _, ok := drop[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	e.recs[kind] = kept
}

// recordSource adapts a record slice to fuzzy.Source.
type recordSource []Record

func (s recordSource) String(i int) string { return s[i].Text }
func (s recordSource) Len() int            { return len(s) }

// Search implements Engine. sahilm/fuzzy returns matches sorted best-first
// with higher scores better, which is already the contract's direction.
func (e *FuzzyEngine) Search(ctx context.Context, kind Kind, query string, limit int) ([]Hit, error) {
	if query == "" {
		return nil, nil
	}
	e.mu.RLock()
	recs := e.recs[kind]
	e.mu.RUnlock()
	matches := fuzzy.FindFrom(query, recordSource(recs))
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	hits := make([]Hit, len(matches))
	for i, m := range matches {
		hits[i] = Hit{ID: recs[m.Index].ID, Score: float64(m.Score)}
	}
	return hits, nil
}

// Records implements Engine.
func (e *FuzzyEngine) Records(kind Kind) []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Record(nil), e.recs[kind]...)
}

// Record implements Engine.
func (e *FuzzyEngine) Record(kind Kind, id uint32) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.recs[kind] {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// MarshalIndex implements Engine. The record slice is the index.
func (e *FuzzyEngine) MarshalIndex(kind Kind) ([]byte, error) {
	e.mu.RLock()
	recs := append([]Record(nil), e.recs[kind]...)
	e.mu.RUnlock()
	sort.Slice(recs, func(a, b int) bool { return recs[a].ID < recs[b].ID })
	return json.Marshal(recs)
}

// LoadIndex implements Engine.
func (e *FuzzyEngine) LoadIndex(kind Kind, raw []byte) error {
	var recs []Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return fmt.Errorf("failed to decode fuzzy index: %w", err)
	}
	e.Set(kind, recs)
	return nil
}

// Close implements Engine.
func (e *FuzzyEngine) Close() error { return nil }

var _ Engine = (*FuzzyEngine)(nil)
