package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const (
	// tokenBatchSize chunks bulk indexing so a full rebuild of hundreds of
	// thousands of headings never holds one giant batch in memory.
	tokenBatchSize = 2000
	// fuzzyMinTermLen disables fuzzy matching for short terms; at heading
	// scale, fuzzy matching two-letter terms is both expensive and noisy.
	fuzzyMinTermLen = 4
)

// tokenDoc is the indexed document shape for the token engine.
type tokenDoc struct {
	Text string `json:"text"`
}

// TokenEngine implements Engine with an in-memory Bleve index per entity
// kind. Multi-word queries OR-combine per-term disjunctions instead of
// intersecting, which keeps worst-case cost predictable at scale. The
// canonical record set is kept alongside the index; it is the engine's
// serialized form, and reloading replays it through the batch path.
type TokenEngine struct {
	mu      sync.RWMutex
	indexes map[Kind]bleve.Index
	recs    map[Kind]map[uint32]string
}

// NewTokenEngine creates an empty token engine.
func NewTokenEngine() *TokenEngine {
	return &TokenEngine{
		indexes: make(map[Kind]bleve.Index),
		recs:    make(map[Kind]map[uint32]string),
	}
}

// tokenMapping builds the index mapping: a single text field, standard
// analyzer (lowercase + tokenize, no stemming) so queries match the exact
// words that appear in names and headings.
func tokenMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textField)
	im.DefaultMapping = docMapping
	return im
}

// Name implements Engine.
func (e *TokenEngine) Name() Name { return Mini }

// Set implements Engine.
func (e *TokenEngine) Set(kind Kind, recs []Record) {
	idx, err := bleve.NewMemOnly(tokenMapping())
	if err != nil {
		// NewMemOnly only fails on a broken mapping, which is fixed at
		// compile time; treat as unreachable but keep the old index.
		return
	}
	batch := idx.NewBatch()
	n := 0
	for _, r := range recs {
		_ = batch.Index(recordID(r.ID), tokenDoc{Text: r.Text})
		n++
		if n >= tokenBatchSize {
			_ = idx.Batch(batch)
			batch = idx.NewBatch()
			n = 0
		}
	}
	if n > 0 {
		_ = idx.Batch(batch)
	}
	byID := make(map[uint32]string, len(recs))
	for _, r := range recs {
		byID[r.ID] = r.Text
	}
	e.mu.Lock()
	if old := e.indexes[kind]; old != nil {
		_ = old.Close()
	}
	e.indexes[kind] = idx
	e.recs[kind] = byID
	e.mu.Unlock()
}

// Add implements Engine.
func (e *TokenEngine) Add(kind Kind, recs []Record) {
	if len(recs) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexes[kind]
	if idx == nil {
		var err error
		idx, err = bleve.NewMemOnly(tokenMapping())
		if err != nil {
			return
		}
		e.indexes[kind] = idx
		e.recs[kind] = make(map[uint32]string)
	}
	batch := idx.NewBatch()
	for _, r := range recs {
		_ = batch.Index(recordID(r.ID), tokenDoc{Text: r.Text})
		e.recs[kind][r.ID] = r.Text
	}
	_ = idx.Batch(batch)
}

// Remove implements Engine.
func (e *TokenEngine) Remove(kind Kind, ids []uint32) {
	if len(ids) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexes[kind]
	if idx == nil {
		return
	}
	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(recordID(id))
		delete(e.recs[kind], id)
	}
	_ = idx.Batch(batch)
}

// Search implements Engine.
func (e *TokenEngine) Search(ctx context.Context, kind Kind, query string, limit int) ([]Hit, error) {
	if query == "" {
		return nil, nil
	}
	e.mu.RLock()
	idx := e.indexes[kind]
	e.mu.RUnlock()
	if idx == nil {
		return nil, nil
	}
	req := bleve.NewSearchRequest(buildTokenQuery(query))
	if limit > 0 {
		req.Size = limit
	}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("token search failed: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 32)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{ID: uint32(id), Score: hit.Score})
	}
	return hits, nil
}

// buildTokenQuery builds a disjunction across terms; each term matches as an
// exact token or prefix, with fuzziness 1 added only for longer terms.
// OR-combining avoids the intersection cost of conjunctive multi-word
// queries against a large heading index.
func buildTokenQuery(query string) blevequery.Query {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return bleve.NewMatchNoneQuery()
	}
	perTerm := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		tq := bleve.NewTermQuery(term)
		tq.SetField("text")
		pq := bleve.NewPrefixQuery(term)
		pq.SetField("text")
		alternatives := []blevequery.Query{tq, pq}
		if len(term) >= fuzzyMinTermLen {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(1)
			fq.SetField("text")
			alternatives = append(alternatives, fq)
		}
		perTerm = append(perTerm, bleve.NewDisjunctionQuery(alternatives...))
	}
	if len(perTerm) == 1 {
		return perTerm[0]
	}
	return bleve.NewDisjunctionQuery(perTerm...)
}

// Records implements Engine.
func (e *TokenEngine) Records(kind Kind) []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.recordsLocked(kind)
}

func (e *TokenEngine) recordsLocked(kind Kind) []Record {
	recs := make([]Record, 0, len(e.recs[kind]))
	for id, text := range e.recs[kind] {
		recs = append(recs, Record{ID: id, Text: text})
	}
	sort.Slice(recs, func(a, b int) bool { return recs[a].ID < recs[b].ID })
	return recs
}

// Record implements Engine.
func (e *TokenEngine) Record(kind Kind, id uint32) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	text, ok := e.recs[kind][id]
	return Record{ID: id, Text: text}, ok
}

// MarshalIndex implements Engine. The record set is the native serialized
// form; the Bleve structure is rebuilt from it on load via the batch path.
func (e *TokenEngine) MarshalIndex(kind Kind) ([]byte, error) {
	e.mu.RLock()
	recs := e.recordsLocked(kind)
	e.mu.RUnlock()
	return json.Marshal(recs)
}

// LoadIndex implements Engine.
func (e *TokenEngine) LoadIndex(kind Kind, raw []byte) error {
	var recs []Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return fmt.Errorf("failed to decode token index: %w", err)
	}
	e.Set(kind, recs)
	return nil
}

// Close implements Engine.
func (e *TokenEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for kind, idx := range e.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.indexes, kind)
	}
	return firstErr
}

func recordID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

var _ Engine = (*TokenEngine)(nil)
