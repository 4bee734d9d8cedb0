package cache

import (
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/jmgilman/willdolater/logging"
)

// Entry is the metadata of one cached working copy.
type Entry struct {
	Key        string    `json:"key"`
	Repository string    `json:"repository"`
	Path       string    `json:"path"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsed   time.Time `json:"last_used"`

	// Held reports whether the entry was guarded or leased when it was read.
	Held bool `json:"-"`
}

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	fs     billy.Filesystem
	logger *logging.Logger
	now    func() time.Time
}

// PruneStrategy decides whether an unheld entry should be evicted.
type PruneStrategy interface {
	ShouldPrune(entry Entry, now time.Time) bool
}

// PruneFunc adapts a function to PruneStrategy.
type PruneFunc func(entry Entry, now time.Time) bool

// ShouldPrune calls f.
func (f PruneFunc) ShouldPrune(entry Entry, now time.Time) bool {
	return f(entry, now)
}

// pruneOlderThan evicts entries unused for longer than maxAge.
type pruneOlderThan struct {
	maxAge time.Duration
}

func (p *pruneOlderThan) ShouldPrune(entry Entry, now time.Time) bool {
	return now.Sub(entry.LastUsed) > p.maxAge
}

// PruneReport lists what one prune pass did, by entry key.
type PruneReport struct {
	Removed []string
	Skipped []string
	Failed  map[string]error
}
