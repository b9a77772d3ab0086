package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// State is the outcome of loading an index from disk.
type State int

const (
	Empty State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "empty"
}

// LoadResult describes what Open found on disk. Err is set when a damaged
// index was moved aside and replaced by an empty one.
type LoadResult struct {
	State   State
	Entries int
	Reason  string
	Err     error
}

type metadataFile struct {
	Dimension int     `json:"dimension"`
	Entries   []Entry `json:"entries"`
}

// Open loads the index persisted in dir. It never returns a nil index:
// a missing or damaged pair of files yields an empty one and the outcome
// is reported in the LoadResult.
func Open(dir string) (*Index, LoadResult) {
	x, err := newIndex(dir)
	if err != nil {
		return nil, LoadResult{State: Empty, Reason: "cannot create index", Err: err}
	}

	indexPath := filepath.Join(dir, IndexFile)
	metaPath := filepath.Join(dir, MetadataFile)

	_, idxErr := os.Stat(indexPath)
	_, metaErr := os.Stat(metaPath)
	if errors.Is(idxErr, fs.ErrNotExist) && errors.Is(metaErr, fs.ErrNotExist) {
		return x, LoadResult{State: Empty, Reason: "no index yet"}
	}

	if err := x.load(indexPath, metaPath); err != nil {
		quarantine(indexPath, metaPath)
		fresh, ferr := newIndex(dir)
		if ferr != nil {
			return nil, LoadResult{State: Empty, Reason: "cannot create index", Err: ferr}
		}
		return fresh, LoadResult{State: Empty, Reason: "index files unreadable, moved aside", Err: err}
	}

	return x, LoadResult{State: Loaded, Entries: len(x.entries), Reason: "loaded from disk"}
}

func (x *Index) load(indexPath, metaPath string) error {
	raw, err := os.ReadFile(metaPath) // #nosec G304
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	var meta metadataFile
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	if err := x.db.ImportFromFile(indexPath, ""); err != nil {
		return fmt.Errorf("import index: %w", err)
	}
	col := x.db.GetCollection(collectionName, nil)
	if col == nil {
		return fmt.Errorf("import index: collection %q missing", collectionName)
	}

	if col.Count() != len(meta.Entries) {
		return fmt.Errorf("index has %d vectors but metadata lists %d entries", col.Count(), len(meta.Entries))
	}
	if len(meta.Entries) > 0 && meta.Dimension <= 0 {
		return fmt.Errorf("metadata has invalid dimension %d", meta.Dimension)
	}

	x.col = col
	x.dim = meta.Dimension
	x.entries = meta.Entries
	return nil
}

// Save writes both files. Each is written to a temporary sibling and
// renamed into place.
func (x *Index) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(x.dir, 0750); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	indexPath := filepath.Join(x.dir, IndexFile)
	tmpIndex := indexPath + ".tmp"
	if err := x.db.ExportToFile(tmpIndex, false, "", collectionName); err != nil {
		os.Remove(tmpIndex)
		return fmt.Errorf("export index: %w", err)
	}

	raw, err := json.Marshal(metadataFile{Dimension: x.dim, Entries: x.entries})
	if err != nil {
		os.Remove(tmpIndex)
		return fmt.Errorf("encode metadata: %w", err)
	}
	metaPath := filepath.Join(x.dir, MetadataFile)
	tmpMeta := metaPath + ".tmp"
	if err := os.WriteFile(tmpMeta, raw, 0600); err != nil {
		os.Remove(tmpIndex)
		return fmt.Errorf("write metadata: %w", err)
	}

	if err := os.Rename(tmpIndex, indexPath); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	if err := os.Rename(tmpMeta, metaPath); err != nil {
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}

func quarantine(paths ...string) {
	suffix := fmt.Sprintf(".corrupt-%d", time.Now().Unix())
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			os.Rename(p, p+suffix)
		}
	}
}
