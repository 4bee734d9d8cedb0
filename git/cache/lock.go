package cache

import (
	"context"
	"sync"

	"github.com/jmgilman/willdolater/errors"
)

// keyState is the lock state of one cache key. An exclusive holder and
// shared holders are mutually exclusive.
type keyState struct {
	writer  bool
	readers int
	waiting int

	// changed is closed and replaced whenever the state changes.
	changed chan struct{}
}

func (s *keyState) idle() bool {
	return !s.writer && s.readers == 0 && s.waiting == 0
}

func (s *keyState) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// keyLocks is a table of reader/writer locks keyed by cache key. Unlike
// sync.RWMutex, waiting honors a context and holders can be inspected.
// Shared holds are only reached by downgrading an exclusive one.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyState
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyState)}
}

func (k *keyLocks) state(key string) *keyState {
	s, ok := k.locks[key]
	if !ok {
		s = &keyState{changed: make(chan struct{})}
		k.locks[key] = s
	}
	return s
}

// gc drops the state for key once nobody holds or waits for it. Callers
// hold k.mu.
func (k *keyLocks) gc(key string, s *keyState) {
	if s.idle() && k.locks[key] == s {
		delete(k.locks, key)
	}
}

// lock acquires key exclusively, waiting until ctx is done.
func (k *keyLocks) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	s := k.state(key)
	s.waiting++
	for s.writer || s.readers > 0 {
		ch := s.changed
		k.mu.Unlock()

		select {
		case <-ctx.Done():
			k.mu.Lock()
			s.waiting--
			k.gc(key, s)
			k.mu.Unlock()
			return errors.FromContext(ctx)
		case <-ch:
		}

		k.mu.Lock()
	}
	s.waiting--
	s.writer = true
	k.mu.Unlock()
	return nil
}

// tryLock acquires key exclusively if nobody holds or waits for it.
func (k *keyLocks) tryLock(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	s := k.state(key)
	if s.writer || s.readers > 0 || s.waiting > 0 {
		k.gc(key, s)
		return false
	}
	s.writer = true
	return true
}

// unlock releases an exclusive hold.
func (k *keyLocks) unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.locks[key]
	if !ok || !s.writer {
		panic("cache: unlock of key that is not exclusively held: " + key)
	}
	s.writer = false
	s.broadcast()
	k.gc(key, s)
}

// downgrade converts an exclusive hold into a shared one without letting a
// waiting writer in between.
func (k *keyLocks) downgrade(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.locks[key]
	if !ok || !s.writer {
		panic("cache: downgrade of key that is not exclusively held: " + key)
	}
	s.writer = false
	s.readers++
	s.broadcast()
}

// runlock releases a shared hold.
func (k *keyLocks) runlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.locks[key]
	if !ok || s.readers == 0 {
		panic("cache: runlock of key that is not shared: " + key)
	}
	s.readers--
	s.broadcast()
	k.gc(key, s)
}

// held reports whether key has an exclusive or shared holder.
func (k *keyLocks) held(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.locks[key]
	return ok && (s.writer || s.readers > 0)
}
