package progress

import "time"

// Sweep discards finished logs that ended more than retention ago and have
// no subscribers. It returns the number discarded.
func (b *Bus) Sweep(retention time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-retention)
	removed := 0
	for id, l := range b.logs {
		if !l.finished() || l.subscribers > 0 || l.finishedAt.After(cutoff) {
			continue
		}
		delete(b.logs, id)
		l.discarded = true
		removed++
	}
	return removed
}
