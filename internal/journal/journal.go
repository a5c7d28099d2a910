// Package journal provides the append-only change log used for crash-safe
// fast restart. Events are buffered in memory, flushed on a short timer, and
// written as line-delimited JSON into rotating chunk files. The journal is
// best-effort durability: a failed write is logged and swallowed, because a
// full rebuild is always available as the safety net.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/shirabe/internal/models"
	"go.uber.org/zap"
)

// EventVersion is the current journal record schema version.
const EventVersion = 1

// Event operations.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
	OpRename = "rename"
)

const (
	defaultFlushDelay    = 500 * time.Millisecond
	defaultMaxChunkBytes = 512 << 10
	defaultMaxChunkLines = 20000

	chunkPrefix = "events-"
	chunkSuffix = ".ndjson"

	// maxLineBytes bounds a single journal line on read; documents with
	// enormous heading lists still fit well under this.
	maxLineBytes = 4 << 20
)

// Event is one immutable journal record.
type Event struct {
	Version      int                  `json:"v"`
	Timestamp    int64                `json:"ts"` // unix nanoseconds, strictly increasing per journal
	Op           string               `json:"op"`
	Path         string               `json:"path"`
	OldPath      string               `json:"old_path,omitempty"`
	Extension    string               `json:"ext,omitempty"`
	ModifiedTime int64                `json:"mtime,omitempty"`
	Size         int64                `json:"size,omitempty"`
	Headings     []models.HeadingInfo `json:"headings,omitempty"`
}

// UpsertEntry is the payload for an upsert event.
type UpsertEntry struct {
	Path         string
	Extension    string
	ModifiedTime int64
	Size         int64
	Headings     []models.HeadingInfo
}

// Journal is an append-only, chunked event log in a single directory.
type Journal struct {
	dir           string
	flushDelay    time.Duration
	maxChunkBytes int64
	maxChunkLines int
	logger        *zap.Logger

	mu         sync.Mutex
	buf        []Event
	flushTimer *time.Timer
	lastTS     int64
	curPath    string
	curLines   int
	curBytes   int64
	closed     bool
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets a logger for debug and write-failure output.
func WithLogger(l *zap.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithFlushDelay overrides the flush debounce interval.
func WithFlushDelay(d time.Duration) Option {
	return func(j *Journal) { j.flushDelay = d }
}

// WithChunkLimits overrides the chunk rotation ceilings.
func WithChunkLimits(maxBytes int64, maxLines int) Option {
	return func(j *Journal) {
		j.maxChunkBytes = maxBytes
		j.maxChunkLines = maxLines
	}
}

// New creates a journal over dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	j := &Journal{
		dir:           dir,
		flushDelay:    defaultFlushDelay,
		maxChunkBytes: defaultMaxChunkBytes,
		maxChunkLines: defaultMaxChunkLines,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// AppendUpsert enqueues an upsert event for a document.
func (j *Journal) AppendUpsert(entry UpsertEntry) {
	j.append(Event{
		Op:           OpUpsert,
		Path:         entry.Path,
		Extension:    entry.Extension,
		ModifiedTime: entry.ModifiedTime,
		Size:         entry.Size,
		Headings:     entry.Headings,
	})
}

// AppendDelete enqueues a delete event for a path.
func (j *Journal) AppendDelete(path string) {
	j.append(Event{Op: OpDelete, Path: path})
}

// AppendRename enqueues a rename event.
func (j *Journal) AppendRename(oldPath, newPath string) {
	j.append(Event{Op: OpRename, Path: newPath, OldPath: oldPath})
}

func (j *Journal) append(ev Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	ev.Version = EventVersion
	ev.Timestamp = j.nextTimestampLocked()
	j.buf = append(j.buf, ev)
	if len(j.buf) >= j.maxChunkLines {
		j.flushLocked()
		return
	}
	if j.flushTimer == nil {
		j.flushTimer = time.AfterFunc(j.flushDelay, func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			j.flushLocked()
		})
	}
}

// nextTimestampLocked returns a strictly increasing timestamp so that replay
// order is unambiguous even for events appended within the same nanosecond.
func (j *Journal) nextTimestampLocked() int64 {
	ts := time.Now().UnixNano()
	if ts <= j.lastTS {
		ts = j.lastTS + 1
	}
	j.lastTS = ts
	return ts
}

// Flush writes all buffered events to disk immediately.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	if j.flushTimer != nil {
		j.flushTimer.Stop()
		j.flushTimer = nil
	}
	if len(j.buf) == 0 {
		return nil
	}
	events := j.buf
	j.buf = nil

	var lines []byte
	written := 0
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			// An unmarshalable event cannot be journaled; skip it.
			if j.logger != nil {
				j.logger.Warn("journal marshal failed", zap.String("path", ev.Path), zap.Error(err))
			}
			continue
		}
		if j.needsRotationLocked(int64(len(lines))+int64(len(data))+1, written) {
			if err := j.writeChunkLocked(lines, written); err != nil {
				return err
			}
			lines, written = nil, 0
			j.rotateLocked()
		}
		lines = append(lines, data...)
		lines = append(lines, '\n')
		written++
	}
	return j.writeChunkLocked(lines, written)
}

func (j *Journal) needsRotationLocked(pendingBytes int64, pendingLines int) bool {
	if j.curPath == "" {
		return false
	}
	return j.curBytes+pendingBytes > j.maxChunkBytes || j.curLines+pendingLines > j.maxChunkLines
}

func (j *Journal) rotateLocked() {
	j.curPath = ""
	j.curLines = 0
	j.curBytes = 0
}

func (j *Journal) writeChunkLocked(lines []byte, count int) error {
	if count == 0 {
		return nil
	}
	if j.curPath == "" {
		j.curPath = filepath.Join(j.dir, fmt.Sprintf("%s%d%s", chunkPrefix, time.Now().UnixNano(), chunkSuffix))
	}
	f, err := os.OpenFile(j.curPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		if j.logger != nil {
			j.logger.Warn("journal chunk open failed", zap.String("path", j.curPath), zap.Error(err))
		}
		return fmt.Errorf("failed to open journal chunk: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(lines); err != nil {
		if j.logger != nil {
			j.logger.Warn("journal chunk write failed", zap.String("path", j.curPath), zap.Error(err))
		}
		return fmt.Errorf("failed to write journal chunk: %w", err)
	}
	j.curLines += count
	j.curBytes += int64(len(lines))
	return nil
}

// LoadAllEvents reads every chunk file and returns all events sorted by
// timestamp ascending. Malformed lines are skipped individually; a chunk
// that cannot be read at all is skipped as a whole.
func (j *Journal) LoadAllEvents() ([]Event, error) {
	j.mu.Lock()
	pending := append([]Event(nil), j.buf...)
	j.mu.Unlock()

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}
	var events []Event
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, chunkPrefix) || !strings.HasSuffix(name, chunkSuffix) {
			continue
		}
		chunkEvents, err := j.loadChunk(filepath.Join(j.dir, name))
		if err != nil {
			if j.logger != nil {
				j.logger.Warn("journal chunk read failed", zap.String("chunk", name), zap.Error(err))
			}
			continue
		}
		events = append(events, chunkEvents...)
	}
	events = append(events, pending...)
	sort.SliceStable(events, func(a, b int) bool { return events[a].Timestamp < events[b].Timestamp })
	return events, nil
}

func (j *Journal) loadChunk(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil || ev.Op == "" || ev.Path == "" {
			if j.logger != nil {
				j.logger.Debug("journal skipping malformed line", zap.String("chunk", filepath.Base(path)))
			}
			continue
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}

// Reset discards all buffered and persisted events. Used when a full rebuild
// re-baselines the journal.
func (j *Journal) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.flushTimer != nil {
		j.flushTimer.Stop()
		j.flushTimer = nil
	}
	j.buf = nil
	j.rotateLocked()
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return fmt.Errorf("failed to read journal directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, chunkPrefix) || !strings.HasSuffix(name, chunkSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, name)); err != nil {
			return fmt.Errorf("failed to remove journal chunk: %w", err)
		}
	}
	return nil
}

// Close flushes remaining events and stops the journal. Appends after Close
// are dropped.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	err := j.flushLocked()
	j.closed = true
	return err
}
