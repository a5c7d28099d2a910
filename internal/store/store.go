// Package store persists and restores engine index snapshots and the id
// compaction maps. Every artifact is tagged with the schema version; loading
// is all-or-nothing, and any missing file or version mismatch yields no
// snapshot at all, which callers answer with a full rebuild. There is no
// partial or best-effort load.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/shirabe/internal/engine"
	"github.com/hyperjump/shirabe/internal/idmap"
	"go.uber.org/zap"
)

// SchemaVersion gates every persisted artifact. Bumping it invalidates all
// existing snapshots and forces one full rebuild on next startup.
const SchemaVersion = 2

const idMapFileName = "idmap.json"

// snapshotFile wraps an engine index blob with its version tag.
type snapshotFile struct {
	Version int             `json:"version"`
	Index   json.RawMessage `json:"index"`
}

// idMapFile is the persisted form of both id compaction maps.
type idMapFile struct {
	Version  int         `json:"version"`
	Files    idmap.Table `json:"files"`
	Headings idmap.Table `json:"headings"`
}

// Snapshot is a fully loaded, version-checked set of snapshot artifacts.
type Snapshot struct {
	Indexes  map[engine.Name]map[engine.Kind][]byte
	Files    *idmap.Map
	Headings *idmap.Map
}

// Store reads and writes snapshot artifacts in a single directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a store over dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index store directory: %w", err)
	}
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// indexFileName returns the snapshot filename for an engine × kind pair.
func indexFileName(name engine.Name, kind engine.Kind) string {
	return fmt.Sprintf("%s-%s.json", name, kind)
}

// rawFormat reports whether the pair is stored as the engine's native raw
// serialization without the version wrapper. Only the token engine's heading
// index qualifies: it is by far the largest artifact, and skipping the
// wrapper keeps its load path a single decode.
func rawFormat(name engine.Name, kind engine.Kind) bool {
	return name == engine.Mini && kind == engine.KindHeadings
}

// Save serializes the given engines' persisted kinds plus both id maps.
// Each file is written to a temp name and renamed into place.
func (s *Store) Save(engines []engine.Engine, files, headings *idmap.Map) error {
	for _, e := range engines {
		for _, kind := range engine.PersistedKinds {
			raw, err := e.MarshalIndex(kind)
			if err != nil {
				return fmt.Errorf("failed to serialize %s %s index: %w", e.Name(), kind, err)
			}
			data := raw
			if !rawFormat(e.Name(), kind) {
				data, err = json.Marshal(snapshotFile{Version: SchemaVersion, Index: raw})
				if err != nil {
					return fmt.Errorf("failed to wrap %s %s index: %w", e.Name(), kind, err)
				}
			}
			if err := s.writeFile(indexFileName(e.Name(), kind), data); err != nil {
				return err
			}
		}
	}
	mapData, err := json.Marshal(idMapFile{
		Version:  SchemaVersion,
		Files:    files.Table(),
		Headings: headings.Table(),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize id maps: %w", err)
	}
	return s.writeFile(idMapFileName, mapData)
}

func (s *Store) writeFile(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

// Load reads the snapshot artifacts for the named engines. It returns
// (nil, nil) when no usable snapshot exists: any expected file missing,
// unreadable, malformed, or carrying a different schema version. The caller
// treats that as "full rebuild required", never as an error.
func (s *Store) Load(names []engine.Name) (*Snapshot, error) {
	snap := &Snapshot{Indexes: make(map[engine.Name]map[engine.Kind][]byte)}
	for _, name := range names {
		perKind := make(map[engine.Kind][]byte)
		for _, kind := range engine.PersistedKinds {
			fileName := indexFileName(name, kind)
			data, err := os.ReadFile(filepath.Join(s.dir, fileName))
			if err != nil {
				s.debugReject(fileName, err)
				return nil, nil
			}
			if rawFormat(name, kind) {
				perKind[kind] = data
				continue
			}
			var sf snapshotFile
			if err := json.Unmarshal(data, &sf); err != nil {
				s.debugReject(fileName, err)
				return nil, nil
			}
			if sf.Version != SchemaVersion {
				s.debugReject(fileName, fmt.Errorf("version %d, want %d", sf.Version, SchemaVersion))
				return nil, nil
			}
			perKind[kind] = sf.Index
		}
		snap.Indexes[name] = perKind
	}
	data, err := os.ReadFile(filepath.Join(s.dir, idMapFileName))
	if err != nil {
		s.debugReject(idMapFileName, err)
		return nil, nil
	}
	var mf idMapFile
	if err := json.Unmarshal(data, &mf); err != nil {
		s.debugReject(idMapFileName, err)
		return nil, nil
	}
	if mf.Version != SchemaVersion {
		s.debugReject(idMapFileName, fmt.Errorf("version %d, want %d", mf.Version, SchemaVersion))
		return nil, nil
	}
	snap.Files = idmap.FromTable(mf.Files)
	snap.Headings = idmap.FromTable(mf.Headings)
	return snap, nil
}

func (s *Store) debugReject(file string, reason error) {
	if s.logger != nil {
		s.logger.Debug("index snapshot rejected, full rebuild required",
			zap.String("file", file), zap.Error(reason))
	}
}

// Clear removes all snapshot artifacts.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read index store directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove snapshot file: %w", err)
		}
	}
	return nil
}
