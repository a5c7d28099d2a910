// Package idmap provides the bidirectional mapping between stable string
// identifiers (paths, path::ordinal heading keys) and compact numeric ids.
// Engines index numeric ids instead of raw keys, which keeps index memory
// and snapshot size bounded at large vault sizes. A numeric id, once
// assigned, is never reused for a different key within a session, and the
// mapping persists across restarts so stored engine snapshots stay valid.
package idmap

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Map is an in-memory bidirectional key ⇄ id table.
type Map struct {
	mu    sync.RWMutex
	byKey map[string]uint32
	byID  map[uint32]string
	next  uint32
}

// New creates an empty map.
func New() *Map {
	return &Map{
		byKey: make(map[string]uint32),
		byID:  make(map[uint32]string),
	}
}

// Assign returns the id for key, allocating the next id if key is new.
func (m *Map) Assign(key string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[key]; ok {
		return id
	}
	id := m.next
	m.next++
	m.byKey[key] = id
	m.byID[id] = key
	return id
}

// Lookup returns the id for key without allocating.
func (m *Map) Lookup(key string) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	return id, ok
}

// Key returns the stable key for id.
func (m *Map) Key(id uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byID[id]
	return key, ok
}

// Remove drops the mapping for key and returns the id it held. The id is
// retired, not recycled: the next counter never moves backwards.
func (m *Map) Remove(key string) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[key]
	if !ok {
		return 0, false
	}
	delete(m.byKey, key)
	delete(m.byID, id)
	return id, true
}

// Rekey moves the id held by oldKey to newKey, preserving the numeric id so
// a rename keeps search continuity. If newKey is already mapped, its old id
// is retired so both directions of the table stay consistent. Returns false
// if oldKey is unmapped.
func (m *Map) Rekey(oldKey, newKey string) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[oldKey]
	if !ok {
		return 0, false
	}
	if clobbered, exists := m.byKey[newKey]; exists && clobbered != id {
		delete(m.byID, clobbered)
	}
	delete(m.byKey, oldKey)
	m.byKey[newKey] = id
	m.byID[id] = newKey
	return id, true
}

// Len returns the number of live mappings.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey)
}

// Keys returns a copy of all mapped stable keys.
func (m *Map) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.byKey))
	for k := range m.byKey {
		keys = append(keys, k)
	}
	return keys
}

// Pair is one [id, key] entry in the serialized table.
type Pair struct {
	ID  uint32
	Key string
}

// MarshalJSON encodes the pair as a two-element array, the on-disk form.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.ID, p.Key})
}

// UnmarshalJSON decodes the [id, key] array form.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &p.ID); err != nil {
		return fmt.Errorf("malformed id map pair id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Key); err != nil {
		return fmt.Errorf("malformed id map pair key: %w", err)
	}
	return nil
}

// Table is the serializable snapshot of a Map.
type Table struct {
	Next  uint32 `json:"next"`
	Pairs []Pair `json:"pairs"`
}

// Table captures the current state for persistence.
func (m *Map) Table() Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pairs := make([]Pair, 0, len(m.byKey))
	for key, id := range m.byKey {
		pairs = append(pairs, Pair{ID: id, Key: key})
	}
	return Table{Next: m.next, Pairs: pairs}
}

// FromTable reconstructs a Map from a persisted table. The next counter is
// raised above every persisted id even if the stored counter is stale.
func FromTable(t Table) *Map {
	m := New()
	m.next = t.Next
	for _, p := range t.Pairs {
		m.byKey[p.Key] = p.ID
		m.byID[p.ID] = p.Key
		if p.ID >= m.next {
			m.next = p.ID + 1
		}
	}
	return m
}
