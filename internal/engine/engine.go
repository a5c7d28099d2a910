// Package engine defines the search engine contract and its two
// implementations: a fuzzy matcher tolerant of typos and partial names, and
// a token matcher with predictable cost at large heading counts. Both index
// compact numeric ids, never raw paths; the idmap package owns the
// translation back to stable keys.
package engine

import (
	"context"
	"fmt"
)

// Kind selects which entity index an operation targets.
type Kind string

const (
	KindFiles    Kind = "files"
	KindHeadings Kind = "headings"
	KindCommands Kind = "commands"
)

// Kinds lists every entity kind.
var Kinds = []Kind{KindFiles, KindHeadings, KindCommands}

// PersistedKinds lists the kinds whose indexes are snapshotted to disk.
// Commands are rebuilt wholesale from the registry on every startup.
var PersistedKinds = []Kind{KindFiles, KindHeadings}

// Name identifies an engine implementation or the hybrid selection policy.
type Name string

const (
	// Fuse is the fuzzy engine: typo and partial-substring tolerant, at
	// higher per-query cost. Used for live human-typed file name queries.
	Fuse Name = "fuse"
	// Mini is the token engine: exact/prefix token matching with bounded
	// fuzziness only for longer terms. Cheap and deterministic for short
	// structured text like headings and command names.
	Mini Name = "mini"
	// Hybrid is not an engine; it routes per entity kind (files to Fuse,
	// headings and commands to Mini).
	Hybrid Name = "hybrid"
)

// ParseName validates an engine selection string.
func ParseName(s string) (Name, error) {
	switch Name(s) {
	case Fuse, Mini, Hybrid:
		return Name(s), nil
	}
	return "", fmt.Errorf("unknown engine: %q", s)
}

// Record is one indexable {id, text} entry.
type Record struct {
	ID   uint32 `json:"id"`
	Text string `json:"text"`
}

// Hit is one engine-local match. Higher score is always better, regardless
// of the underlying library's native convention.
type Hit struct {
	ID    uint32
	Score float64
}

// Engine indexes {id, text} records per entity kind and answers ranked
// queries. Implementations are safe for concurrent use.
type Engine interface {
	Name() Name
	// Set replaces the whole index for kind.
	Set(kind Kind, recs []Record)
	// Add incrementally extends the index for kind. An existing id is
	// replaced.
	Add(kind Kind, recs []Record)
	// Remove incrementally shrinks the index for kind.
	Remove(kind Kind, ids []uint32)
	// Search returns up to limit hits for query, best first.
	Search(ctx context.Context, kind Kind, query string, limit int) ([]Hit, error)
	// Records returns a copy of the indexed records for kind, for warming
	// another engine or serializing.
	Records(kind Kind) []Record
	// Record returns the indexed record for one id.
	Record(kind Kind, id uint32) (Record, bool)
	// MarshalIndex serializes the index for kind.
	MarshalIndex(kind Kind) ([]byte, error)
	// LoadIndex restores the index for kind from MarshalIndex output.
	LoadIndex(kind Kind, raw []byte) error
	Close() error
}
