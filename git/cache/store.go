package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/git"
	"github.com/jmgilman/willdolater/logging"
)

// Store maps repository identifiers to local working copies.
//
// Every key has a guard: at most one exclusive holder, which may downgrade
// to a shared lease while the working copy is read. Entries that are
// guarded or leased cannot be removed.
//
// The store only tracks state; cloning and updating are the caller's job
// while it holds the guard.
type Store struct {
	basePath  string
	reposDir  string
	indexPath string

	opts  storeOptions
	index *cacheIndex
	locks *keyLocks
}

// NewStore opens the store rooted at basePath, creating the directory
// layout and index if needed.
//
//	<basePath>/
//	├── index.json
//	└── repos/
//	    └── github.com_owner_repo-1a2b3c4d5e6f/
func NewStore(basePath string, opts ...StoreOption) (*Store, error) {
	options := storeOptions{
		fs:     osfs.New("/"),
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	s := &Store{
		basePath:  basePath,
		reposDir:  filepath.Join(basePath, "repos"),
		indexPath: filepath.Join(basePath, "index.json"),
		opts:      options,
		locks:     newKeyLocks(),
	}

	if err := options.fs.MkdirAll(s.reposDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create cache directory")
	}

	index, err := loadOrCreateIndex(options.fs, s.indexPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to load cache index")
	}
	s.index = index
	return s, nil
}

// PathFor returns the working copy path for id, whether or not it exists.
func (s *Store) PathFor(id git.Identifier) string {
	return filepath.Join(s.reposDir, dirName(id.Key()))
}

// dirName turns a key into a single flat directory name. The hash suffix
// keeps keys that differ only in punctuation apart, and keeps nested
// repository paths from landing inside each other.
func dirName(key string) string {
	sum := sha256.Sum256([]byte(key))
	readable := strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(strings.TrimPrefix(key, "/"))
	if len(readable) > 80 {
		readable = readable[:80]
	}
	return readable + "-" + hex.EncodeToString(sum[:6])
}

// Acquire blocks until it holds the exclusive guard for id or ctx is done.
//
// A directory left behind without an index entry, for example by a crash
// during a clone, is removed before the guard is returned, so callers see
// either a recorded working copy or nothing.
func (s *Store) Acquire(ctx context.Context, id git.Identifier) (*Guard, error) {
	key := id.Key()
	if err := s.locks.lock(ctx, key); err != nil {
		return nil, errors.WithContext(err, "repository", id.String())
	}

	g := &Guard{store: s, id: id, key: key, path: s.PathFor(id)}
	if entry, ok := s.index.get(key); ok {
		if _, err := s.opts.fs.Stat(g.path); err == nil {
			g.entry = &entry
			return g, nil
		}
		s.opts.logger.Warn(ctx, "working copy missing, dropping cache entry", "key", key, "path", g.path)
		if err := s.discard(key, g.path); err != nil {
			s.locks.unlock(key)
			return nil, err
		}
		return g, nil
	}

	if err := util.RemoveAll(s.opts.fs, g.path); err != nil {
		s.locks.unlock(key)
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to clear stale working copy"),
			"path", g.path,
		)
	}
	return g, nil
}

// Lookup returns the entry for id without waiting for its guard.
func (s *Store) Lookup(id git.Identifier) (Entry, bool) {
	entry, ok := s.index.get(id.Key())
	if ok {
		entry.Held = s.locks.held(entry.Key)
	}
	return entry, ok
}

// Touch marks the entry for id as used now.
func (s *Store) Touch(id git.Identifier) error {
	entry, ok := s.index.get(id.Key())
	if !ok {
		return errors.Newf(errors.CodeNotFound, "no cache entry for %s", id)
	}
	entry.LastUsed = s.opts.now()
	s.index.set(entry)
	return s.saveIndex()
}

// Remove deletes the working copy and metadata for id. It fails with
// errors.CodeCacheBusy while the entry is guarded or leased, and does
// nothing when there is no entry.
func (s *Store) Remove(id git.Identifier) error {
	return s.removeKey(id.Key())
}

func (s *Store) removeKey(key string) error {
	if !s.locks.tryLock(key) {
		return errors.WithContext(errors.New(errors.CodeCacheBusy, "cache entry is in use"), "key", key)
	}
	defer s.locks.unlock(key)

	entry, ok := s.index.get(key)
	if !ok {
		return nil
	}
	return s.discard(entry.Key, entry.Path)
}

// discard removes a working copy and its index entry. The caller holds the
// exclusive guard for key.
func (s *Store) discard(key, path string) error {
	if err := util.RemoveAll(s.opts.fs, path); err != nil && !os.IsNotExist(err) {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to remove working copy"),
			"path", path,
		)
	}
	if _, ok := s.index.get(key); !ok {
		return nil
	}
	s.index.delete(key)
	return s.saveIndex()
}

// Entries lists every cached working copy ordered by key.
func (s *Store) Entries() []Entry {
	entries := s.index.list()
	for i := range entries {
		entries[i].Held = s.locks.held(entries[i].Key)
	}
	return entries
}

func (s *Store) saveIndex() error {
	if err := s.index.save(s.opts.fs, s.indexPath); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to save cache index")
	}
	return nil
}
