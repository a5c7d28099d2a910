// Package tracker owns the authoritative in-memory document, heading and
// folder maps. It detects structural changes, maintains the journal, and
// drives full rebuilds. The coordinator never mutates these maps directly;
// every mutation flows through the tracker's own queue processing.
package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/shirabe/internal/journal"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/vault"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	defaultDebounce  = 350 * time.Millisecond
	defaultBatchSize = 25
)

// Callbacks receive index mutations as they happen. During a full rebuild
// the per-document callbacks are suppressed and a single OnRebuilt fires at
// the end.
type Callbacks struct {
	OnUpsert func(doc models.Document, headings []models.Heading)
	OnRemove func(path string)
	// OnRename, when set, receives renames as a single re-key event so the
	// downstream index can preserve numeric-id continuity. When nil, a
	// rename degrades to OnRemove(oldPath) + OnUpsert.
	OnRename  func(oldPath string, doc models.Document, headings []models.Heading)
	OnRebuilt func()
}

// sigEntry is the per-path snapshot row: structural signature plus the last
// observed stat metadata. Metadata-only changes update this table without
// touching the engines.
type sigEntry struct {
	signature    uint64
	modifiedTime int64
	size         int64
}

type pendingChange struct {
	change models.Change
	timer  *time.Timer
}

// Tracker is the change-tracking index manager for one vault.
type Tracker struct {
	source    vault.Source
	journal   *journal.Journal
	logger    *zap.Logger
	debounce  time.Duration
	batchSize int

	mu           sync.Mutex
	docs         map[string]models.Document
	headings     map[string][]models.Heading
	folders      map[string]struct{}
	sigs         map[string]sigEntry
	exclusions   []string
	needsRebuild bool
	rebuilding   bool
	queue        []models.Change
	debounced    map[string]*pendingChange
	processing   bool
	callbacks    Callbacks
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithDebounce overrides the per-path change coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(t *Tracker) { t.debounce = d }
}

// WithBatchSize overrides how many queued changes are processed between
// cooperative yields.
func WithBatchSize(n int) Option {
	return func(t *Tracker) { t.batchSize = n }
}

// New creates a tracker over source and jnl. exclusions are path prefixes
// kept out of every map.
func New(source vault.Source, jnl *journal.Journal, exclusions []string, opts ...Option) *Tracker {
	t := &Tracker{
		source:     source,
		journal:    jnl,
		debounce:   defaultDebounce,
		batchSize:  defaultBatchSize,
		docs:       make(map[string]models.Document),
		headings:   make(map[string][]models.Heading),
		folders:    make(map[string]struct{}),
		sigs:       make(map[string]sigEntry),
		exclusions: exclusions,
		debounced:  make(map[string]*pendingChange),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetCallbacks registers mutation callbacks. Must be called before changes
// are queued.
func (t *Tracker) SetCallbacks(cb Callbacks) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = cb
}

// Initialize replays the journal into the authoritative maps. With an empty
// or unreadable journal there is no baseline to hydrate from, so the
// full-rebuild flag is set instead. No vault scan happens here.
func (t *Tracker) Initialize(ctx context.Context) error {
	events, err := t.journal.LoadAllEvents()
	if err != nil || len(events) == 0 {
		if err != nil && t.logger != nil {
			t.logger.Warn("journal replay failed, falling back to full rebuild", zap.Error(err))
		}
		t.mu.Lock()
		t.needsRebuild = true
		t.mu.Unlock()
		return nil
	}
	baseline := FoldEvents(events)
	t.mu.Lock()
	defer t.mu.Unlock()
	for path, ev := range baseline {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if t.excludedLocked(path) {
			continue
		}
		t.docs[path] = docFromEvent(path, ev)
		t.headings[path] = models.HeadingsFromInfo(path, ev.Headings)
		t.sigs[path] = sigEntry{
			signature:    models.Signature(ev.Extension, ev.Headings),
			modifiedTime: ev.ModifiedTime,
			size:         ev.Size,
		}
		t.folders[filepath.Dir(path)] = struct{}{}
	}
	if t.logger != nil {
		t.logger.Debug("tracker hydrated from journal",
			zap.Int("events", len(events)), zap.Int("documents", len(t.docs)))
	}
	return nil
}

// FoldEvents collapses a timestamp-ordered event stream into a per-path
// last-writer-wins baseline. Upserts overwrite, deletes remove, renames
// re-key the prior payload.
func FoldEvents(events []journal.Event) map[string]journal.Event {
	baseline := make(map[string]journal.Event)
	for _, ev := range events {
		switch ev.Op {
		case journal.OpUpsert:
			baseline[ev.Path] = ev
		case journal.OpDelete:
			delete(baseline, ev.Path)
		case journal.OpRename:
			prev, ok := baseline[ev.OldPath]
			if !ok {
				continue
			}
			delete(baseline, ev.OldPath)
			prev.Path = ev.Path
			baseline[ev.Path] = prev
		}
	}
	return baseline
}

func docFromEvent(path string, ev journal.Event) models.Document {
	base := filepath.Base(path)
	return models.Document{
		Path:         path,
		Name:         strings.TrimSuffix(base, filepath.Ext(base)),
		Extension:    ev.Extension,
		ModifiedTime: ev.ModifiedTime,
		Size:         ev.Size,
	}
}

// NeedsRebuild reports whether Initialize found no usable baseline.
func (t *Tracker) NeedsRebuild() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.needsRebuild
}

// QueueChange admits a vault change into the per-path debounce stage.
// Coalescing rules within the window: a pending delete wins over any later
// create or modify; a pending create absorbs a following modify; otherwise
// the latest change replaces the previous. Renames bypass the debounce.
func (t *Tracker) QueueChange(c models.Change) {
	t.mu.Lock()
	if c.Op == models.ChangeRenamed {
		excludedNew := t.excludedLocked(c.Path)
		excludedOld := t.excludedLocked(c.OldPath)
		switch {
		case excludedNew && excludedOld:
			t.mu.Unlock()
			return
		case excludedNew:
			c = models.Change{Op: models.ChangeDeleted, Path: c.OldPath}
		case excludedOld:
			c = models.Change{Op: models.ChangeCreated, Path: c.Path}
		}
		t.enqueueLocked(c)
		t.mu.Unlock()
		return
	}
	if t.excludedLocked(c.Path) {
		// A newly excluded path that is still indexed gets removed; anything
		// else about an excluded path is noise.
		if _, indexed := t.docs[c.Path]; !indexed {
			t.mu.Unlock()
			return
		}
		c = models.Change{Op: models.ChangeDeleted, Path: c.Path}
	}
	t.debounceLocked(c)
	t.mu.Unlock()
}

func (t *Tracker) debounceLocked(c models.Change) {
	if prev, ok := t.debounced[c.Path]; ok {
		switch {
		case prev.change.Op == models.ChangeDeleted:
			// delete wins; keep it
		case prev.change.Op == models.ChangeCreated && c.Op == models.ChangeModified:
			// create absorbs the modify
		default:
			prev.change = c
		}
		prev.timer.Reset(t.debounce)
		return
	}
	p := &pendingChange{change: c}
	p.timer = time.AfterFunc(t.debounce, func() {
		t.mu.Lock()
		if cur, ok := t.debounced[c.Path]; ok && cur == p {
			delete(t.debounced, c.Path)
			t.enqueueLocked(cur.change)
		}
		t.mu.Unlock()
	})
	t.debounced[c.Path] = p
}

func (t *Tracker) enqueueLocked(c models.Change) {
	t.queue = append(t.queue, c)
	if !t.processing {
		t.processing = true
		go t.process()
	}
}

// process drains the pending queue in FIFO batches, yielding between
// batches so a burst of changes never monopolizes the scheduler.
func (t *Tracker) process() {
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.processing = false
			t.mu.Unlock()
			return
		}
		n := t.batchSize
		if n > len(t.queue) {
			n = len(t.queue)
		}
		batch := append([]models.Change(nil), t.queue[:n]...)
		t.queue = t.queue[n:]
		t.mu.Unlock()

		for _, c := range batch {
			t.applyChange(c)
		}
		runtime.Gosched()
	}
}

func (t *Tracker) applyChange(c models.Change) {
	switch c.Op {
	case models.ChangeDeleted:
		t.removePath(c.Path)
	case models.ChangeRenamed:
		t.renamePath(c.OldPath, c.Path)
	case models.ChangeCreated, models.ChangeModified:
		t.upsertPath(c.Path)
	}
}

// upsertPath re-stats a path and mutates maps, journal and engines only if
// the structural signature actually changed. A path that no longer resolves
// is treated as already deleted.
func (t *Tracker) upsertPath(path string) {
	info, err := t.source.Stat(path)
	if errors.Is(err, vault.ErrNotExist) {
		t.removePath(path)
		return
	}
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("tracker stat failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	infos, err := t.source.Headings(path)
	if err != nil {
		// Metadata read failures degrade to an empty heading list.
		infos = nil
	}
	sig := models.Signature(info.Extension, infos)

	t.mu.Lock()
	prev, hadPrev := t.sigs[path]
	if hadPrev && prev.signature == sig {
		// Metadata-only change: keep the snapshot row current, skip the
		// journal and the engines entirely.
		t.sigs[path] = sigEntry{signature: sig, modifiedTime: info.ModifiedTime, size: info.Size}
		if doc, ok := t.docs[path]; ok {
			doc.ModifiedTime = info.ModifiedTime
			doc.Size = info.Size
			t.docs[path] = doc
		}
		t.mu.Unlock()
		return
	}
	base := filepath.Base(path)
	doc := models.Document{
		Path:         path,
		Name:         strings.TrimSuffix(base, filepath.Ext(base)),
		Extension:    info.Extension,
		ModifiedTime: info.ModifiedTime,
		Size:         info.Size,
	}
	hs := models.HeadingsFromInfo(path, infos)
	t.docs[path] = doc
	t.headings[path] = hs
	t.sigs[path] = sigEntry{signature: sig, modifiedTime: info.ModifiedTime, size: info.Size}
	t.folders[filepath.Dir(path)] = struct{}{}
	rebuilding := t.rebuilding
	onUpsert := t.callbacks.OnUpsert
	t.mu.Unlock()

	t.journal.AppendUpsert(journal.UpsertEntry{
		Path:         path,
		Extension:    info.Extension,
		ModifiedTime: info.ModifiedTime,
		Size:         info.Size,
		Headings:     infos,
	})
	if !rebuilding && onUpsert != nil {
		onUpsert(doc, hs)
	}
}

func (t *Tracker) removePath(path string) {
	t.mu.Lock()
	_, indexed := t.docs[path]
	if !indexed {
		t.mu.Unlock()
		return
	}
	delete(t.docs, path)
	delete(t.headings, path)
	delete(t.sigs, path)
	rebuilding := t.rebuilding
	onRemove := t.callbacks.OnRemove
	t.mu.Unlock()

	t.journal.AppendDelete(path)
	if !rebuilding && onRemove != nil {
		onRemove(path)
	}
}

// renamePath re-keys a document. If the new path no longer resolves, the
// rename collapses to a delete of the old path. A rename that also changed
// the structural signature (extension changes, edits in flight) is followed
// by a fresh upsert so the journal baseline stays accurate.
func (t *Tracker) renamePath(oldPath, newPath string) {
	info, err := t.source.Stat(newPath)
	if err != nil {
		t.removePath(oldPath)
		return
	}
	infos, err := t.source.Headings(newPath)
	if err != nil {
		infos = nil
	}
	sig := models.Signature(info.Extension, infos)

	t.mu.Lock()
	_, hadOld := t.docs[oldPath]
	oldSig, hadSig := t.sigs[oldPath]
	delete(t.docs, oldPath)
	delete(t.headings, oldPath)
	delete(t.sigs, oldPath)
	base := filepath.Base(newPath)
	doc := models.Document{
		Path:         newPath,
		Name:         strings.TrimSuffix(base, filepath.Ext(base)),
		Extension:    info.Extension,
		ModifiedTime: info.ModifiedTime,
		Size:         info.Size,
	}
	hs := models.HeadingsFromInfo(newPath, infos)
	t.docs[newPath] = doc
	t.headings[newPath] = hs
	t.sigs[newPath] = sigEntry{signature: sig, modifiedTime: info.ModifiedTime, size: info.Size}
	t.folders[filepath.Dir(newPath)] = struct{}{}
	rebuilding := t.rebuilding
	cb := t.callbacks
	t.mu.Unlock()

	if hadOld {
		t.journal.AppendRename(oldPath, newPath)
	}
	if !hadOld || !hadSig || oldSig.signature != sig {
		t.journal.AppendUpsert(journal.UpsertEntry{
			Path:         newPath,
			Extension:    info.Extension,
			ModifiedTime: info.ModifiedTime,
			Size:         info.Size,
			Headings:     infos,
		})
	}
	if rebuilding {
		return
	}
	if hadOld && cb.OnRename != nil {
		cb.OnRename(oldPath, doc, hs)
		return
	}
	if hadOld && cb.OnRemove != nil {
		cb.OnRemove(oldPath)
	}
	if cb.OnUpsert != nil {
		cb.OnUpsert(doc, hs)
	}
}

// FullRebuild clears all state and re-scans the entire vault. Incremental
// callbacks are suppressed for the duration; a single OnRebuilt fires when
// the scan completes.
func (t *Tracker) FullRebuild(ctx context.Context) error {
	t.mu.Lock()
	t.rebuilding = true
	t.docs = make(map[string]models.Document)
	t.headings = make(map[string][]models.Heading)
	t.folders = make(map[string]struct{})
	t.sigs = make(map[string]sigEntry)
	t.mu.Unlock()

	finish := func() {
		t.mu.Lock()
		t.rebuilding = false
		t.mu.Unlock()
	}

	if err := t.journal.Reset(); err != nil {
		if t.logger != nil {
			t.logger.Warn("journal reset failed", zap.Error(err))
		}
	}
	paths, err := t.source.List()
	if err != nil {
		finish()
		return err
	}
	for i, path := range paths {
		if ctx.Err() != nil {
			finish()
			return ctx.Err()
		}
		if t.excluded(path) {
			continue
		}
		t.upsertPath(path)
		if (i+1)%t.batchSize == 0 {
			runtime.Gosched()
		}
	}
	_ = t.journal.Flush()

	t.mu.Lock()
	t.rebuilding = false
	t.needsRebuild = false
	onRebuilt := t.callbacks.OnRebuilt
	docCount := len(t.docs)
	t.mu.Unlock()
	if t.logger != nil {
		t.logger.Info("full rebuild complete", zap.Int("documents", docCount))
	}
	if onRebuilt != nil {
		onRebuilt()
	}
	return nil
}

// SetExclusions replaces the exclusion prefixes. Newly excluded paths are
// actively removed; when exclusions shrink, newly included paths are queued
// for indexing.
func (t *Tracker) SetExclusions(prefixes []string) {
	t.mu.Lock()
	old := t.exclusions
	t.exclusions = prefixes
	var toRemove []string
	for path := range t.docs {
		if t.excludedLocked(path) {
			toRemove = append(toRemove, path)
		}
	}
	t.mu.Unlock()

	for _, path := range toRemove {
		t.removePath(path)
	}
	if !exclusionsShrank(old, prefixes) {
		return
	}
	paths, err := t.source.List()
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("vault enumeration failed after exclusion change", zap.Error(err))
		}
		return
	}
	t.mu.Lock()
	var toAdd []string
	for _, path := range paths {
		if t.excludedLocked(path) {
			continue
		}
		if _, ok := t.docs[path]; !ok {
			toAdd = append(toAdd, path)
		}
	}
	t.mu.Unlock()
	for _, path := range toAdd {
		t.QueueChange(models.Change{Op: models.ChangeCreated, Path: path})
	}
}

// exclusionsShrank reports whether any old prefix is gone from the new set.
func exclusionsShrank(old, updated []string) bool {
	current := make(map[string]struct{}, len(updated))
	for _, p := range updated {
		current[p] = struct{}{}
	}
	for _, p := range old {
		if _, ok := current[p]; !ok {
			return true
		}
	}
	return false
}

func (t *Tracker) excluded(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.excludedLocked(path)
}

func (t *Tracker) excludedLocked(path string) bool {
	for _, prefix := range t.exclusions {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Documents returns a copy of all indexed documents, sorted by path.
func (t *Tracker) Documents() []models.Document {
	t.mu.Lock()
	docs := lo.Values(t.docs)
	t.mu.Unlock()
	sort.Slice(docs, func(a, b int) bool { return docs[a].Path < docs[b].Path })
	return docs
}

// Document returns one indexed document.
func (t *Tracker) Document(path string) (models.Document, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	doc, ok := t.docs[path]
	return doc, ok
}

// HeadingsFor returns the indexed headings of one document.
func (t *Tracker) HeadingsFor(path string) []models.Heading {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Heading(nil), t.headings[path]...)
}

// Heading resolves one heading by its composite key.
func (t *Tracker) Heading(path string, ordinal int) (models.Heading, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	hs := t.headings[path]
	if ordinal < 0 || ordinal >= len(hs) {
		return models.Heading{}, false
	}
	return hs[ordinal], true
}

// AllHeadings returns a copy of every indexed heading, grouped by document
// path order.
func (t *Tracker) AllHeadings() []models.Heading {
	t.mu.Lock()
	paths := lo.Keys(t.headings)
	t.mu.Unlock()
	sort.Strings(paths)
	var out []models.Heading
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range paths {
		out = append(out, t.headings[p]...)
	}
	return out
}

// Folders returns the sorted set of folders containing indexed documents.
func (t *Tracker) Folders() []string {
	t.mu.Lock()
	folders := lo.Keys(t.folders)
	t.mu.Unlock()
	sort.Strings(folders)
	return folders
}

// Counts returns the number of indexed documents and headings.
func (t *Tracker) Counts() (docs, headings int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, hs := range t.headings {
		headings += len(hs)
	}
	return len(t.docs), headings
}

// Flush forces any debounced changes through immediately and waits for the
// queue to drain. Intended for tests and shutdown.
func (t *Tracker) Flush() {
	t.mu.Lock()
	pending := lo.Values(t.debounced)
	t.debounced = make(map[string]*pendingChange)
	for _, p := range pending {
		p.timer.Stop()
		t.enqueueLocked(p.change)
	}
	t.mu.Unlock()
	for {
		t.mu.Lock()
		idle := !t.processing && len(t.queue) == 0
		t.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close stops pending debounce timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for path, p := range t.debounced {
		p.timer.Stop()
		delete(t.debounced, path)
	}
}
