package cache

import (
	"cmp"
	"encoding/json"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/jmgilman/willdolater/errors"
)

const indexVersion = "1"

// cacheIndex is the persisted metadata of every working copy, keyed by
// repository key. Entries are stored by value so callers never share them.
type cacheIndex struct {
	Version string           `json:"version"`
	Entries map[string]Entry `json:"entries"`

	mu     sync.RWMutex
	saveMu sync.Mutex
}

func newIndex() *cacheIndex {
	return &cacheIndex{
		Version: indexVersion,
		Entries: make(map[string]Entry),
	}
}

// loadOrCreateIndex reads the index at path. A missing file yields an empty
// index. An unreadable file or one written by another version fails.
func loadOrCreateIndex(fs billy.Filesystem, path string) (*cacheIndex, error) {
	data, err := util.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return newIndex(), nil
	}
	if err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to read cache index"), "path", path)
	}

	index := newIndex()
	if err := json.Unmarshal(data, index); err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeInternal, "cache index is corrupt"), "path", path)
	}
	if index.Version != indexVersion {
		return nil, errors.WithContextMap(
			errors.Newf(errors.CodeInternal, "cache index version %q is not supported", index.Version),
			map[string]interface{}{"path": path, "expected": indexVersion},
		)
	}
	if index.Entries == nil {
		index.Entries = make(map[string]Entry)
	}
	return index, nil
}

// save replaces the file at path with the current contents. The data goes
// to a sibling temporary file first, so readers never see a partial index.
func (idx *cacheIndex) save(fs billy.Filesystem, path string) error {
	idx.saveMu.Lock()
	defer idx.saveMu.Unlock()

	idx.mu.RLock()
	data, err := json.MarshalIndent(idx, "", "  ")
	idx.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to encode cache index")
	}

	tmp := path + ".tmp"
	if err := util.WriteFile(fs, tmp, data, 0o644); err != nil {
		_ = fs.Remove(tmp)
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to write cache index"), "path", tmp)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to replace cache index"), "path", path)
	}
	return nil
}

func (idx *cacheIndex) get(key string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.Entries[key]
	return e, ok
}

func (idx *cacheIndex) set(e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.Entries[e.Key] = e
}

func (idx *cacheIndex) delete(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.Entries, key)
}

// list returns all entries ordered by key.
func (idx *cacheIndex) list() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return slices.SortedFunc(maps.Values(idx.Entries), func(a, b Entry) int {
		return cmp.Compare(a.Key, b.Key)
	})
}
