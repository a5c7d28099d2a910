// Package coordinator is the top-level façade over the search index: it
// wires the journal, tracker, engines, id maps and snapshot store together,
// decides between the fast snapshot-load and the full-rebuild restart paths,
// dispatches live vault changes into incremental engine patches, and answers
// search queries.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/shirabe/internal/commands"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/engine"
	"github.com/hyperjump/shirabe/internal/idmap"
	"github.com/hyperjump/shirabe/internal/journal"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/store"
	"github.com/hyperjump/shirabe/internal/tracker"
	"github.com/hyperjump/shirabe/internal/vault"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Settings are the live-reconfigurable knobs, pushed by the host without a
// restart.
type Settings struct {
	Engine      engine.Name
	PrebuildAll bool
	Exclusions  []string
}

// Status is a point-in-time summary for status endpoints.
type Status struct {
	Ready          bool        `json:"ready"`
	Engine         engine.Name `json:"engine"`
	FastLoaded     bool        `json:"fast_loaded"`
	Documents      int         `json:"documents"`
	Headings       int         `json:"headings"`
	Commands       int         `json:"commands"`
	DiskUsageBytes int64       `json:"disk_usage_bytes"`
}

// Coordinator orchestrates the whole index. It exclusively owns the engine
// instances and the numeric id maps; the tracker exclusively owns the
// authoritative entity maps.
type Coordinator struct {
	cfg      *config.Config
	source   vault.Source
	registry commands.Registry
	logger   *zap.Logger

	journal *journal.Journal
	tracker *tracker.Tracker
	store   *store.Store

	mu               sync.RWMutex
	engines          map[engine.Name]engine.Engine
	warm             map[engine.Name]bool
	active           engine.Name
	prebuildAll      bool
	fileIDs          *idmap.Map
	headingIDs       *idmap.Map
	commandIDs       *idmap.Map
	headingIDsByPath map[string][]uint32
	minimalDocs      map[string]models.Document
	commandByKey     map[string]models.Command
	ready            bool
	fastLoaded       bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a logger for all owned components.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New wires a coordinator over the given vault source and command registry.
// Initialize must be called before searching.
func New(cfg *config.Config, source vault.Source, registry commands.Registry, opts ...Option) (*Coordinator, error) {
	active, err := cfg.EngineName()
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:              cfg,
		source:           source,
		registry:         registry,
		engines:          map[engine.Name]engine.Engine{engine.Fuse: engine.NewFuzzyEngine(), engine.Mini: engine.NewTokenEngine()},
		warm:             make(map[engine.Name]bool),
		active:           active,
		prebuildAll:      cfg.Index.PrebuildAll,
		fileIDs:          idmap.New(),
		headingIDs:       idmap.New(),
		commandIDs:       idmap.New(),
		headingIDsByPath: make(map[string][]uint32),
		minimalDocs:      make(map[string]models.Document),
		commandByKey:     make(map[string]models.Command),
	}
	for _, opt := range opts {
		opt(c)
	}

	journalOpts := []journal.Option{journal.WithFlushDelay(time.Duration(cfg.Index.JournalFlushMillis) * time.Millisecond)}
	trackerOpts := []tracker.Option{
		tracker.WithDebounce(time.Duration(cfg.Index.DebounceMillis) * time.Millisecond),
		tracker.WithBatchSize(cfg.Index.BatchSize),
	}
	storeOpts := []store.Option{}
	if c.logger != nil {
		journalOpts = append(journalOpts, journal.WithLogger(c.logger))
		trackerOpts = append(trackerOpts, tracker.WithLogger(c.logger))
		storeOpts = append(storeOpts, store.WithLogger(c.logger))
	}
	c.journal, err = journal.New(cfg.Storage.JournalDir(), journalOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	c.store, err = store.New(cfg.Storage.IndexDir(), storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	c.tracker = tracker.New(source, c.journal, config.NormalizeExclusions(cfg.Vault.Exclusions), trackerOpts...)
	c.tracker.SetCallbacks(tracker.Callbacks{
		OnUpsert:  c.handleUpsert,
		OnRemove:  c.handleRemove,
		OnRename:  c.handleRename,
		OnRebuilt: c.handleRebuilt,
	})
	return c, nil
}

// neededEngines returns the engine names that must be warm under the current
// selection.
func (c *Coordinator) neededEngines() []engine.Name {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.neededEnginesLocked()
}

func (c *Coordinator) neededEnginesLocked() []engine.Name {
	if c.active == engine.Hybrid || c.prebuildAll {
		return []engine.Name{engine.Fuse, engine.Mini}
	}
	return []engine.Name{c.active}
}

// Initialize readies the index. Fast path: a persisted, version-matching
// snapshot is loaded directly and the tracker hydrates from the journal
// alone. Slow path: the tracker initializes (running a full rebuild if the
// journal gave no baseline), both needed engines are built from the
// resulting maps, and a fresh snapshot is persisted. Commands are indexed
// after the engines are ready on either path.
func (c *Coordinator) Initialize(ctx context.Context) error {
	needed := c.neededEngines()
	if !c.cfg.Index.ForceRebuild {
		snap, err := c.store.Load(needed)
		if err != nil {
			return err
		}
		if snap != nil && c.loadSnapshot(snap) {
			if err := c.tracker.Initialize(ctx); err != nil {
				return err
			}
			c.SyncCommands()
			c.mu.Lock()
			c.ready = true
			c.fastLoaded = true
			c.mu.Unlock()
			if c.logger != nil {
				c.logger.Info("index loaded from snapshot",
					zap.Int("documents", c.fileIDs.Len()), zap.Int("headings", c.headingIDs.Len()))
			}
			return nil
		}
	}

	if err := c.tracker.Initialize(ctx); err != nil {
		return err
	}
	if c.tracker.NeedsRebuild() || c.cfg.Index.ForceRebuild {
		// FullRebuild ends with OnRebuilt, which builds the engines and
		// persists the snapshot.
		if err := c.tracker.FullRebuild(ctx); err != nil {
			return err
		}
	} else {
		c.rebuildEngines()
		c.persistSnapshot()
	}
	c.SyncCommands()
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	return nil
}

// loadSnapshot installs a loaded snapshot into the engines and id maps.
// Returns false if any engine blob fails to decode, in which case the slow
// path takes over.
func (c *Coordinator) loadSnapshot(snap *store.Snapshot) bool {
	for name, perKind := range snap.Indexes {
		eng := c.engines[name]
		for kind, raw := range perKind {
			if err := eng.LoadIndex(kind, raw); err != nil {
				if c.logger != nil {
					c.logger.Warn("snapshot blob rejected, falling back to rebuild",
						zap.String("engine", string(name)), zap.String("kind", string(kind)), zap.Error(err))
				}
				return false
			}
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fileIDs = snap.Files
	c.headingIDs = snap.Headings
	for name := range snap.Indexes {
		c.warm[name] = true
	}
	c.headingIDsByPath = make(map[string][]uint32)
	for _, key := range c.headingIDs.Keys() {
		path, _, err := models.ParseHeadingKey(key)
		if err != nil {
			continue
		}
		id, _ := c.headingIDs.Lookup(key)
		c.headingIDsByPath[path] = append(c.headingIDsByPath[path], id)
	}
	c.minimalDocs = make(map[string]models.Document)
	for _, path := range c.fileIDs.Keys() {
		c.minimalDocs[path] = models.DocumentFromPath(path)
	}
	return true
}

// rebuildEngines builds every needed engine from the tracker's maps,
// assigning numeric ids as it goes. With prebuild enabled both engines are
// built in parallel.
func (c *Coordinator) rebuildEngines() {
	docs := c.tracker.Documents()
	heads := c.tracker.AllHeadings()

	c.mu.Lock()
	fileRecs := make([]engine.Record, 0, len(docs))
	for _, doc := range docs {
		fileRecs = append(fileRecs, engine.Record{ID: c.fileIDs.Assign(doc.Path), Text: doc.Name})
	}
	c.headingIDsByPath = make(map[string][]uint32)
	headingRecs := make([]engine.Record, 0, len(heads))
	for _, h := range heads {
		id := c.headingIDs.Assign(h.Key())
		headingRecs = append(headingRecs, engine.Record{ID: id, Text: h.Text})
		c.headingIDsByPath[h.Path] = append(c.headingIDsByPath[h.Path], id)
	}
	c.minimalDocs = make(map[string]models.Document)
	needed := c.neededEnginesLocked()
	engines := make([]engine.Engine, 0, len(needed))
	for _, name := range needed {
		engines = append(engines, c.engines[name])
		c.warm[name] = true
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, eng := range engines {
		eng := eng
		g.Go(func() error {
			eng.Set(engine.KindFiles, fileRecs)
			eng.Set(engine.KindHeadings, headingRecs)
			return nil
		})
	}
	_ = g.Wait()
	if c.logger != nil {
		c.logger.Debug("engines rebuilt",
			zap.Int("files", len(fileRecs)), zap.Int("headings", len(headingRecs)))
	}
}

// persistSnapshot writes all warm engines plus the id maps to the store.
func (c *Coordinator) persistSnapshot() {
	c.mu.RLock()
	var warmEngines []engine.Engine
	for name, eng := range c.engines {
		if c.warm[name] {
			warmEngines = append(warmEngines, eng)
		}
	}
	fileIDs, headingIDs := c.fileIDs, c.headingIDs
	c.mu.RUnlock()
	if len(warmEngines) == 0 {
		return
	}
	if err := c.store.Save(warmEngines, fileIDs, headingIDs); err != nil && c.logger != nil {
		c.logger.Warn("snapshot save failed", zap.Error(err))
	}
}

// SyncCommands rebuilds the command index wholesale from the registry.
func (c *Coordinator) SyncCommands() {
	if c.registry == nil {
		return
	}
	cmds := c.registry.List()
	c.mu.Lock()
	c.commandByKey = make(map[string]models.Command, len(cmds))
	recs := make([]engine.Record, 0, len(cmds))
	for _, cmd := range cmds {
		c.commandByKey[cmd.ID] = cmd
		recs = append(recs, engine.Record{ID: c.commandIDs.Assign(cmd.ID), Text: cmd.Name})
	}
	engines := c.warmEnginesLocked()
	c.mu.Unlock()
	for _, eng := range engines {
		eng.Set(engine.KindCommands, recs)
	}
}

func (c *Coordinator) warmEnginesLocked() []engine.Engine {
	var out []engine.Engine
	for name, eng := range c.engines {
		if c.warm[name] {
			out = append(out, eng)
		}
	}
	return out
}

// engineFor applies the selection policy: hybrid routes file-name search to
// the fuzzy engine and the short structured kinds (headings, commands) to
// the token engine; a pinned selection routes everything to one engine.
func (c *Coordinator) engineFor(mode models.Mode) engine.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name := c.active
	if name == engine.Hybrid {
		if mode == models.ModeFiles {
			name = engine.Fuse
		} else {
			name = engine.Mini
		}
	}
	return c.engines[name]
}

func kindFor(mode models.Mode) engine.Kind {
	switch mode {
	case models.ModeHeadings:
		return engine.KindHeadings
	case models.ModeCommands:
		return engine.KindCommands
	default:
		return engine.KindFiles
	}
}

// Search answers a ranked query. An empty query yields an empty result set;
// browsing is Suggestions' job.
func (c *Coordinator) Search(ctx context.Context, q models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	mode, err := models.ParseMode(string(q.Mode))
	if err != nil {
		return nil, err
	}
	query := strings.TrimSpace(q.Query)
	resp := &models.SearchResponse{Query: query, Results: []models.SearchHit{}}
	eng := c.engineFor(mode)
	resp.Engine = string(eng.Name())
	if query == "" {
		return resp, nil
	}
	limit := c.clampLimit(q.Limit)
	fetch := limit
	if len(q.Extensions) > 0 {
		// Over-fetch so a post-filter still fills the page.
		fetch = c.cfg.Search.MaxLimit
	}
	hits, err := eng.Search(ctx, kindFor(mode), query, fetch)
	if err != nil {
		return nil, err
	}
	for _, hit := range hits {
		if len(resp.Results) >= limit {
			break
		}
		if resolved, ok := c.resolveHit(mode, hit.ID, hit.Score, eng); ok && c.matchExtensions(resolved, q.Extensions) {
			resp.Results = append(resp.Results, resolved)
		}
	}
	resp.Total = len(resp.Results)
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

// resolveHit maps an engine-local numeric id back to a full entity. On the
// snapshot fast path the tracker may know nothing yet; files fall back to
// the minimal descriptors reconstructed from the id map, and headings fall
// back to the engine's own record text.
func (c *Coordinator) resolveHit(mode models.Mode, id uint32, score float64, eng engine.Engine) (models.SearchHit, bool) {
	switch mode {
	case models.ModeFiles:
		path, ok := c.fileIDs.Key(id)
		if !ok {
			return models.SearchHit{}, false
		}
		doc, ok := c.tracker.Document(path)
		if !ok {
			c.mu.RLock()
			doc, ok = c.minimalDocs[path]
			c.mu.RUnlock()
			if !ok {
				return models.SearchHit{}, false
			}
		}
		return models.SearchHit{Mode: mode, Score: score, Document: &doc}, true
	case models.ModeHeadings:
		key, ok := c.headingIDs.Key(id)
		if !ok {
			return models.SearchHit{}, false
		}
		path, ordinal, err := models.ParseHeadingKey(key)
		if err != nil {
			return models.SearchHit{}, false
		}
		h, ok := c.tracker.Heading(path, ordinal)
		if !ok {
			rec, found := eng.Record(engine.KindHeadings, id)
			if !found {
				return models.SearchHit{}, false
			}
			h = models.Heading{Path: path, Ordinal: ordinal, Text: rec.Text}
		}
		return models.SearchHit{Mode: mode, Score: score, Heading: &h}, true
	case models.ModeCommands:
		key, ok := c.commandIDs.Key(id)
		if !ok {
			return models.SearchHit{}, false
		}
		c.mu.RLock()
		cmd, ok := c.commandByKey[key]
		c.mu.RUnlock()
		if !ok {
			return models.SearchHit{}, false
		}
		return models.SearchHit{Mode: mode, Score: score, Command: &cmd}, true
	}
	return models.SearchHit{}, false
}

func (c *Coordinator) matchExtensions(hit models.SearchHit, extensions []string) bool {
	if len(extensions) == 0 || hit.Document == nil {
		return true
	}
	return lo.ContainsBy(extensions, func(ext string) bool {
		return strings.EqualFold(strings.TrimPrefix(ext, "."), hit.Document.Extension)
	})
}

func (c *Coordinator) clampLimit(limit int) int {
	if limit <= 0 {
		return c.cfg.Search.DefaultLimit
	}
	if limit > c.cfg.Search.MaxLimit {
		return c.cfg.Search.MaxLimit
	}
	return limit
}

// Suggestions returns a cheap, unranked listing straight from the in-memory
// maps, for empty-query browse states.
func (c *Coordinator) Suggestions(mode models.Mode, limit int, extensions []string) []models.Suggestion {
	limit = c.clampLimit(limit)
	var out []models.Suggestion
	switch mode {
	case models.ModeFiles:
		docs := c.tracker.Documents()
		if len(docs) == 0 {
			c.mu.RLock()
			docs = lo.Values(c.minimalDocs)
			c.mu.RUnlock()
		}
		for _, doc := range docs {
			doc := doc
			hit := models.SearchHit{Document: &doc}
			if !c.matchExtensions(hit, extensions) {
				continue
			}
			out = append(out, models.Suggestion{Mode: mode, Document: &doc})
			if len(out) >= limit {
				break
			}
		}
	case models.ModeHeadings:
		for _, h := range c.tracker.AllHeadings() {
			h := h
			out = append(out, models.Suggestion{Mode: mode, Heading: &h})
			if len(out) >= limit {
				break
			}
		}
	case models.ModeCommands:
		if c.registry == nil {
			return nil
		}
		for _, cmd := range c.registry.List() {
			cmd := cmd
			out = append(out, models.Suggestion{Mode: mode, Command: &cmd})
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// HandleChange feeds one vault change notification into the tracker's
// debounce queue. This is the wiring point for a watching source.
func (c *Coordinator) HandleChange(change models.Change) {
	c.tracker.QueueChange(change)
}

// handleUpsert patches only the affected records in every warm engine; this
// is what keeps live edits sub-second regardless of collection size.
func (c *Coordinator) handleUpsert(doc models.Document, headings []models.Heading) {
	c.mu.Lock()
	fid := c.fileIDs.Assign(doc.Path)
	oldIDs := c.headingIDsByPath[doc.Path]
	newIDs := make([]uint32, 0, len(headings))
	headingRecs := make([]engine.Record, 0, len(headings))
	for _, h := range headings {
		id := c.headingIDs.Assign(h.Key())
		newIDs = append(newIDs, id)
		headingRecs = append(headingRecs, engine.Record{ID: id, Text: h.Text})
	}
	// Ordinals beyond the new heading count are gone.
	var removed []uint32
	for _, id := range oldIDs {
		if !lo.Contains(newIDs, id) {
			removed = append(removed, id)
			if key, ok := c.headingIDs.Key(id); ok {
				c.headingIDs.Remove(key)
			}
		}
	}
	c.headingIDsByPath[doc.Path] = newIDs
	delete(c.minimalDocs, doc.Path)
	engines := c.warmEnginesLocked()
	c.mu.Unlock()

	for _, eng := range engines {
		eng.Add(engine.KindFiles, []engine.Record{{ID: fid, Text: doc.Name}})
		eng.Remove(engine.KindHeadings, removed)
		eng.Add(engine.KindHeadings, headingRecs)
	}
}

func (c *Coordinator) handleRemove(path string) {
	c.mu.Lock()
	var fileIDs []uint32
	if id, ok := c.fileIDs.Remove(path); ok {
		fileIDs = append(fileIDs, id)
	}
	headingIDs := c.headingIDsByPath[path]
	delete(c.headingIDsByPath, path)
	for _, id := range headingIDs {
		if key, ok := c.headingIDs.Key(id); ok {
			c.headingIDs.Remove(key)
		}
	}
	delete(c.minimalDocs, path)
	engines := c.warmEnginesLocked()
	c.mu.Unlock()

	for _, eng := range engines {
		eng.Remove(engine.KindFiles, fileIDs)
		eng.Remove(engine.KindHeadings, headingIDs)
	}
}

// handleRename re-keys the numeric ids instead of retiring them, so a
// renamed document keeps its engine identity and search continuity.
func (c *Coordinator) handleRename(oldPath string, doc models.Document, headings []models.Heading) {
	c.mu.Lock()
	fid, ok := c.fileIDs.Rekey(oldPath, doc.Path)
	if !ok {
		fid = c.fileIDs.Assign(doc.Path)
	}
	oldIDs := c.headingIDsByPath[oldPath]
	delete(c.headingIDsByPath, oldPath)
	newIDs := make([]uint32, 0, len(headings))
	headingRecs := make([]engine.Record, 0, len(headings))
	for i, h := range headings {
		var id uint32
		if i < len(oldIDs) {
			id = oldIDs[i]
			if key, found := c.headingIDs.Key(id); found {
				c.headingIDs.Rekey(key, h.Key())
			}
		} else {
			id = c.headingIDs.Assign(h.Key())
		}
		newIDs = append(newIDs, id)
		headingRecs = append(headingRecs, engine.Record{ID: id, Text: h.Text})
	}
	var removed []uint32
	for _, id := range oldIDs[min(len(headings), len(oldIDs)):] {
		removed = append(removed, id)
		if key, found := c.headingIDs.Key(id); found {
			c.headingIDs.Remove(key)
		}
	}
	c.headingIDsByPath[doc.Path] = newIDs
	delete(c.minimalDocs, oldPath)
	delete(c.minimalDocs, doc.Path)
	engines := c.warmEnginesLocked()
	c.mu.Unlock()

	for _, eng := range engines {
		eng.Add(engine.KindFiles, []engine.Record{{ID: fid, Text: doc.Name}})
		eng.Remove(engine.KindHeadings, removed)
		eng.Add(engine.KindHeadings, headingRecs)
	}
}

// handleRebuilt fires once after a full rebuild, replacing the many
// incremental notifications that were suppressed during it.
func (c *Coordinator) handleRebuilt() {
	c.rebuildEngines()
	c.persistSnapshot()
}

// ApplySettings live-reconfigures the coordinator. An engine switch lazily
// warms the newly active engine from the already-warm engine's cached
// records, so no vault access is needed.
func (c *Coordinator) ApplySettings(s Settings) error {
	if _, err := engine.ParseName(string(s.Engine)); err != nil {
		return err
	}
	c.mu.Lock()
	c.active = s.Engine
	c.prebuildAll = s.PrebuildAll
	needed := c.neededEnginesLocked()
	var cold []engine.Name
	var donor engine.Engine
	for name, eng := range c.engines {
		if c.warm[name] {
			donor = eng
		}
	}
	for _, name := range needed {
		if !c.warm[name] {
			cold = append(cold, name)
		}
	}
	c.mu.Unlock()

	for _, name := range cold {
		c.warmEngine(name, donor)
	}
	c.tracker.SetExclusions(config.NormalizeExclusions(s.Exclusions))
	return nil
}

// warmEngine builds a cold engine, preferring the warm engine's records and
// falling back to the tracker's maps.
func (c *Coordinator) warmEngine(name engine.Name, donor engine.Engine) {
	c.mu.RLock()
	target := c.engines[name]
	c.mu.RUnlock()
	if donor != nil {
		for _, kind := range engine.Kinds {
			target.Set(kind, donor.Records(kind))
		}
	} else {
		c.rebuildEngines()
		c.SyncCommands()
	}
	c.mu.Lock()
	c.warm[name] = true
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Debug("engine warmed", zap.String("engine", string(name)))
	}
}

// RequestRebuild forces a full rebuild of everything.
func (c *Coordinator) RequestRebuild(ctx context.Context) error {
	return c.tracker.FullRebuild(ctx)
}

// ExecuteCommand runs a registry command by id.
func (c *Coordinator) ExecuteCommand(id string) error {
	if c.registry == nil {
		return fmt.Errorf("no command registry configured")
	}
	return c.registry.Execute(id)
}

// Ready reports whether Initialize has completed.
func (c *Coordinator) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Status summarizes the index for status endpoints.
func (c *Coordinator) Status() Status {
	docs, heads := c.tracker.Counts()
	c.mu.RLock()
	st := Status{
		Ready:      c.ready,
		Engine:     c.active,
		FastLoaded: c.fastLoaded,
		Documents:  docs,
		Headings:   heads,
		Commands:   len(c.commandByKey),
	}
	if docs == 0 {
		st.Documents = len(c.minimalDocs)
	}
	if heads == 0 {
		st.Headings = c.headingIDs.Len()
	}
	c.mu.RUnlock()
	if usage, err := store.DiskUsageBytes(c.cfg.Storage.DataDir); err == nil {
		st.DiskUsageBytes = usage
	}
	return st
}

// Tracker exposes the owned tracker, for hosts that deliver changes
// directly.
func (c *Coordinator) Tracker() *tracker.Tracker { return c.tracker }

// Shutdown persists the current engine state plus id maps, then closes the
// journal and engines.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.tracker.Flush()
	c.tracker.Close()
	c.persistSnapshot()
	err := c.journal.Close()
	c.mu.RLock()
	engines := lo.Values(c.engines)
	c.mu.RUnlock()
	for _, eng := range engines {
		if cerr := eng.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
