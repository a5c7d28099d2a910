package vault

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/shirabe/internal/models"
	"go.uber.org/zap"
)

// renameWindow is how long a rename of an old path waits to be paired with a
// create of a new path before it degrades to a plain delete.
const renameWindow = 250 * time.Millisecond

// DirSource is a filesystem-backed Source over one or more root directories,
// with fsnotify-driven change notifications. Events are classified into
// created/modified/deleted/renamed; a rename that leaves the watched roots
// is reported as a delete.
type DirSource struct {
	roots      []string
	extensions []string
	recursive  bool
	onChange   func(models.Change)

	watcher   *fsnotify.Watcher
	mu        sync.Mutex
	pending   *pendingRename
	rootPaths map[string][]string // root -> watched dir paths
	done      chan struct{}
	started   bool
	stopOnce  sync.Once
	logger    *zap.Logger
}

type pendingRename struct {
	oldPath string
	timer   *time.Timer
}

// DirSourceOption configures a DirSource.
type DirSourceOption func(*DirSource)

// WithLogger sets a logger for debug output (events, classification, etc.).
func WithLogger(l *zap.Logger) DirSourceOption {
	return func(d *DirSource) { d.logger = l }
}

// NewDirSource creates a source over roots. extensions filter which files
// are visible (empty = all); recursive controls subdirectory traversal.
func NewDirSource(roots []string, extensions []string, recursive bool, opts ...DirSourceOption) *DirSource {
	d := &DirSource{
		roots:      roots,
		extensions: extensions,
		recursive:  recursive,
		rootPaths:  make(map[string][]string),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnChange registers the change callback. Must be called before Start.
func (d *DirSource) OnChange(fn func(models.Change)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// Stat implements Source.
func (d *DirSource) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, ErrNotExist
		}
		return FileInfo{}, err
	}
	if !info.Mode().IsRegular() {
		return FileInfo{}, ErrNotExist
	}
	return FileInfo{
		Extension:    normalizeExt(filepath.Ext(path)),
		Size:         info.Size(),
		ModifiedTime: info.ModTime().UnixNano(),
	}, nil
}

// Headings implements Source. Only markdown documents carry headings.
func (d *DirSource) Headings(path string) ([]models.HeadingInfo, error) {
	if normalizeExt(filepath.Ext(path)) != "md" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	defer f.Close()
	return ParseHeadings(f)
}

// List implements Source.
func (d *DirSource) List() ([]string, error) {
	var paths []string
	for _, root := range d.roots {
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable subtree contributes nothing
			}
			if entry.IsDir() {
				if !d.recursive && filepath.Clean(path) != filepath.Clean(root) {
					return fs.SkipDir
				}
				return nil
			}
			if d.matchExtension(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (d *DirSource) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.watcher = watcher
	d.started = true
	if d.logger != nil {
		d.logger.Debug("vault watcher starting",
			zap.Strings("roots", d.roots), zap.Strings("extensions", d.extensions), zap.Bool("recursive", d.recursive))
	}
	for _, root := range d.roots {
		if err := d.addRootLocked(root); err != nil {
			_ = d.watcher.Close()
			d.watcher = nil
			d.started = false
			d.mu.Unlock()
			return err
		}
	}
	d.mu.Unlock()
	go d.run(ctx, watcher)
	return nil
}

// run owns the event loop. The watcher is passed in rather than read from
// d.watcher: Stop nils that field under the lock, and Close ends this loop
// by closing the channels.
func (d *DirSource) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			d.Stop()
			return
		case <-d.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			d.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil && d.logger != nil {
				d.logger.Debug("vault watcher error", zap.Error(err))
			}
		}
	}
}

func (d *DirSource) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !d.underRoot(path) {
		return
	}
	if d.logger != nil {
		d.logger.Debug("vault watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	}
	switch {
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			d.handleNewDirectory(path)
			return
		}
		if !d.matchExtension(path) {
			return
		}
		if oldPath, ok := d.takePendingRename(); ok {
			d.emit(models.Change{Op: models.ChangeRenamed, Path: path, OldPath: oldPath})
			return
		}
		d.emit(models.Change{Op: models.ChangeCreated, Path: path})
	case ev.Op.Has(fsnotify.Write):
		if d.matchExtension(path) {
			d.emit(models.Change{Op: models.ChangeModified, Path: path})
		}
	case ev.Op.Has(fsnotify.Rename):
		if d.matchExtension(path) {
			d.holdRename(path)
		}
	case ev.Op.Has(fsnotify.Remove):
		if d.matchExtension(path) {
			d.emit(models.Change{Op: models.ChangeDeleted, Path: path})
		}
	}
}

// holdRename remembers an old path whose rename target has not been seen
// yet. If no matching create arrives within the window, the file left the
// watched roots and the rename degrades to a delete.
func (d *DirSource) holdRename(oldPath string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.timer.Stop()
		d.emitLocked(models.Change{Op: models.ChangeDeleted, Path: d.pending.oldPath})
	}
	p := &pendingRename{oldPath: oldPath}
	p.timer = time.AfterFunc(renameWindow, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.pending == p {
			d.pending = nil
			d.emitLocked(models.Change{Op: models.ChangeDeleted, Path: oldPath})
		}
	})
	d.pending = p
}

func (d *DirSource) takePendingRename() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return "", false
	}
	d.pending.timer.Stop()
	oldPath := d.pending.oldPath
	d.pending = nil
	return oldPath, true
}

func (d *DirSource) emit(c models.Change) {
	d.mu.Lock()
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// emitLocked is emit for callers already holding d.mu.
func (d *DirSource) emitLocked(c models.Change) {
	if d.onChange != nil {
		go d.onChange(c)
	}
}

// handleNewDirectory adds a newly created directory to the watch list and
// reports every file inside it as created.
func (d *DirSource) handleNewDirectory(dirPath string) {
	d.mu.Lock()
	recursive := d.recursive
	watcher := d.watcher
	d.mu.Unlock()
	if watcher == nil {
		return
	}
	if recursive {
		_ = filepath.WalkDir(dirPath, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				if err := watcher.Add(path); err != nil && d.logger != nil {
					d.logger.Debug("vault watcher failed to add directory", zap.String("path", path), zap.Error(err))
				}
			}
			return nil
		})
	} else if err := watcher.Add(dirPath); err != nil && d.logger != nil {
		d.logger.Debug("vault watcher failed to add directory", zap.String("path", dirPath), zap.Error(err))
	}
	_ = filepath.WalkDir(dirPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		if d.matchExtension(path) {
			d.emit(models.Change{Op: models.ChangeCreated, Path: path})
		}
		return nil
	})
}

func (d *DirSource) underRoot(path string) bool {
	d.mu.Lock()
	roots := append([]string(nil), d.roots...)
	d.mu.Unlock()
	clean := filepath.Clean(path)
	for _, root := range roots {
		rootClean := filepath.Clean(root)
		if rootClean == clean || inDir(rootClean, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (d *DirSource) matchExtension(path string) bool {
	if len(d.extensions) == 0 {
		return true
	}
	ext := normalizeExt(filepath.Ext(path))
	for _, e := range d.extensions {
		if normalizeExt(e) == ext {
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(ext), ".")
}

func (d *DirSource) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(root, 0755); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	var paths []string
	if d.recursive {
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() {
				return nil
			}
			if err := d.watcher.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := d.watcher.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	d.rootPaths[root] = paths
	return nil
}

// Roots returns a copy of the watched root directories.
func (d *DirSource) Roots() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.roots...)
}

// Stop stops watching and releases resources.
func (d *DirSource) Stop() {
	d.mu.Lock()
	if !d.started || d.watcher == nil {
		d.mu.Unlock()
		return
	}
	if d.pending != nil {
		d.pending.timer.Stop()
		d.pending = nil
	}
	_ = d.watcher.Close()
	d.watcher = nil
	d.started = false
	d.mu.Unlock()
	d.stopOnce.Do(func() { close(d.done) })
}

var _ Source = (*DirSource)(nil)
