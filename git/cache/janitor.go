package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jmgilman/willdolater/logging"
)

// StartJanitor starts a background goroutine that prunes the store every
// interval with the given strategies. Entries in use are skipped and
// retried on the next tick. Failures are logged and never stop the loop.
//
// Returns a function to stop the janitor. It is safe to call multiple times
// and blocks until the goroutine has exited.
//
// Example:
//
//	stop := store.StartJanitor(24*time.Hour, cache.PruneOlderThan(7*24*time.Hour))
//	defer stop()
func (s *Store) StartJanitor(interval time.Duration, strategies ...PruneStrategy) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx, strategies)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

// sweep runs one prune pass and logs its outcome.
func (s *Store) sweep(ctx context.Context, strategies []PruneStrategy) *PruneReport {
	logger := s.opts.logger.WithOperation("cache.janitor")
	start := time.Now()

	report := s.Prune(ctx, strategies...)

	for _, key := range report.Removed {
		logger.Info(ctx, "evicted cache entry", "key", key)
	}
	for _, key := range report.Skipped {
		logger.Debug(ctx, "skipped cache entry in use", "key", key)
	}
	for key, err := range report.Failed {
		logger.Warn(ctx, "failed to evict cache entry", "key", key, "error", err)
	}
	logger.Debug(ctx, "janitor pass finished",
		"removed", len(report.Removed),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		logging.Duration(start),
	)
	return report
}
