package cache

import (
	"context"
	"time"
)

// Prune evicts every entry that any strategy selects (OR logic). Guarded or
// leased entries are skipped and left for a later pass. Failures are
// collected per entry and never stop the pass.
//
// Examples:
//
//	// Remove working copies unused for a week
//	report := store.Prune(ctx, cache.PruneOlderThan(7*24*time.Hour))
func (s *Store) Prune(ctx context.Context, strategies ...PruneStrategy) *PruneReport {
	report := &PruneReport{Failed: make(map[string]error)}
	if len(strategies) == 0 {
		return report
	}

	now := s.opts.now()
	for _, entry := range s.index.list() {
		if ctx.Err() != nil {
			break
		}
		if !shouldPrune(entry, now, strategies) {
			continue
		}

		if !s.locks.tryLock(entry.Key) {
			report.Skipped = append(report.Skipped, entry.Key)
			continue
		}
		removed, err := s.evict(entry.Key, now, strategies)
		s.locks.unlock(entry.Key)

		switch {
		case err != nil:
			report.Failed[entry.Key] = err
		case removed:
			report.Removed = append(report.Removed, entry.Key)
		}
	}
	return report
}

// evict removes the entry for key if it still qualifies now that the guard
// is held. It may have been refreshed between listing and locking.
func (s *Store) evict(key string, now time.Time, strategies []PruneStrategy) (bool, error) {
	current, ok := s.index.get(key)
	if !ok || !shouldPrune(current, now, strategies) {
		return false, nil
	}
	if err := s.discard(current.Key, current.Path); err != nil {
		return false, err
	}
	return true, nil
}

func shouldPrune(entry Entry, now time.Time, strategies []PruneStrategy) bool {
	for _, strategy := range strategies {
		if strategy.ShouldPrune(entry, now) {
			return true
		}
	}
	return false
}
