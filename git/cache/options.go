package cache

import (
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/jmgilman/willdolater/logging"
)

// WithFilesystem sets the billy filesystem used for the index and for
// removing working copies. It defaults to the root of the local filesystem,
// which is what the version-control drivers write to. Tests that never
// clone may use memfs.
//
// Example:
//
//	store, err := cache.NewStore("/cache", cache.WithFilesystem(memfs.New()))
func WithFilesystem(fs billy.Filesystem) StoreOption {
	return func(opts *storeOptions) {
		opts.fs = fs
	}
}

// WithLogger sets the logger for eviction and cleanup messages.
func WithLogger(logger *logging.Logger) StoreOption {
	return func(opts *storeOptions) {
		opts.logger = logger
	}
}

// WithClock overrides the time source used for last-used stamps and
// retention checks.
func WithClock(now func() time.Time) StoreOption {
	return func(opts *storeOptions) {
		opts.now = now
	}
}

// PruneOlderThan evicts entries not used within maxAge.
//
// Example:
//
//	report := store.Prune(ctx, cache.PruneOlderThan(7*24*time.Hour))
func PruneOlderThan(maxAge time.Duration) PruneStrategy {
	return &pruneOlderThan{maxAge: maxAge}
}
