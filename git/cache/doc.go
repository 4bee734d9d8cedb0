// Package cache keeps local working copies of remote repositories so that
// repeated scans of the same repository update in place instead of cloning
// again.
//
// # Layout
//
//	<base>/
//	├── index.json     # entry metadata: key, path, created, last used
//	└── repos/
//	    └── <flattened key>-<hash>/
//
// # Guards and leases
//
// Each repository key has a guard. Acquire waits for exclusive access, so
// concurrent requests for one repository clone or update it one at a time.
// Once the working copy is ready the holder downgrades to a lease and reads
// it. A later Acquire for the same key waits for the lease too, because an
// update would change files under the reader.
//
//	guard, err := store.Acquire(ctx, id)
//	if err != nil {
//	    return err
//	}
//	// clone or update guard.Path(), then:
//	if err := guard.Record(); err != nil {
//	    guard.Release()
//	    return err
//	}
//	lease := guard.Downgrade()
//	defer lease.Release()
//
// # Eviction
//
// Remove and the Janitor refuse entries that are guarded or leased. Remove
// reports errors.CodeCacheBusy; the Janitor skips the entry until its next
// pass.
//
//	stop := store.StartJanitor(24*time.Hour, cache.PruneOlderThan(7*24*time.Hour))
//	defer stop()
package cache
