// Package pipeline runs a scan end to end: acquire a working copy of the
// repository, search it for markers, attribute each match to the commit
// that last changed its line and select the oldest.
//
// Run executes a request synchronously. Submit runs it in the background
// and returns a Handle for waiting, cancelling and subscribing. Either way
// the request's progress is published to a progress.Bus and ends with
// exactly one terminal event, which carries the same outcome as the return
// value.
//
// Basic usage:
//
//	store, _ := cache.NewStore("/var/cache/willdolater")
//	driver := git.NewCLIDriver()
//	p := pipeline.New(
//		pipeline.NewAcquirer(store, driver),
//		todo.NewScanner(search.NewRipgrepDriver(), search.MustPatterns(search.DefaultPatterns, false)),
//		todo.NewAttributor(driver),
//		progress.NewBus(),
//	)
//
//	h, _ := p.Submit(ctx, "github.com/owner/repo")
//	result, err := h.Wait(ctx)
package pipeline
