package cache

import (
	"sync"

	"github.com/jmgilman/willdolater/git"
)

// Guard is the exclusive hold on one cache key. While it is held no other
// request can acquire the key and the Janitor will not evict it.
//
// A guard ends with exactly one of Release or Downgrade. Further calls are
// no-ops.
type Guard struct {
	store *Store
	id    git.Identifier
	key   string
	path  string
	entry *Entry

	once sync.Once
}

// Identifier returns the repository the guard is for.
func (g *Guard) Identifier() git.Identifier {
	return g.id
}

// Path returns the working copy directory.
func (g *Guard) Path() string {
	return g.path
}

// Entry returns the metadata recorded before the guard was acquired. The
// second result is false when there is no usable working copy yet.
func (g *Guard) Entry() (Entry, bool) {
	if g.entry == nil {
		return Entry{}, false
	}
	return *g.entry, true
}

// Record stores metadata for the working copy after a successful clone or
// update and marks it used now.
func (g *Guard) Record() error {
	now := g.store.opts.now()
	entry := Entry{
		Key:        g.key,
		Repository: g.id.String(),
		Path:       g.path,
		CreatedAt:  now,
		LastUsed:   now,
	}
	if g.entry != nil {
		entry.CreatedAt = g.entry.CreatedAt
	}

	g.store.index.set(entry)
	if err := g.store.saveIndex(); err != nil {
		return err
	}
	g.entry = &entry
	return nil
}

// Discard deletes the working copy and its metadata, typically after a
// failed acquisition left it in an unknown state.
func (g *Guard) Discard() error {
	g.entry = nil
	return g.store.discard(g.key, g.path)
}

// Downgrade trades the exclusive guard for a shared lease. Other
// acquisitions of the key keep waiting until the lease is released, and
// the entry stays protected from eviction.
func (g *Guard) Downgrade() *Lease {
	lease := &Lease{store: g.store, key: g.key, path: g.path}
	downgraded := false
	g.once.Do(func() {
		g.store.locks.downgrade(g.key)
		downgraded = true
	})
	if !downgraded {
		lease.once.Do(func() {})
	}
	return lease
}

// Release gives up the guard.
func (g *Guard) Release() {
	g.once.Do(func() {
		g.store.locks.unlock(g.key)
	})
}

// Lease is a shared hold on a working copy, used while it is scanned.
type Lease struct {
	store *Store
	key   string
	path  string
	once  sync.Once
}

// Path returns the working copy directory.
func (l *Lease) Path() string {
	return l.path
}

// Release gives up the lease. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.store.locks.runlock(l.key)
	})
}
