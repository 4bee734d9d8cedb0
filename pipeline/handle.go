package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/progress"
	"github.com/jmgilman/willdolater/todo"
)

// Handle tracks a request started with Submit.
type Handle struct {
	// ID is the request id the events are published under.
	ID string
	// Repository is the identifier as submitted.
	Repository string

	bus    *progress.Bus
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	result     *todo.Result
	err        error
	finishedAt time.Time
}

// Done is closed once the request has published its terminal event.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the request finishes or ctx is done. Giving up on the
// wait does not cancel the request.
func (h *Handle) Wait(ctx context.Context) (*todo.Result, error) {
	select {
	case <-h.done:
		return h.outcome()
	case <-ctx.Done():
		return nil, errors.FromContext(ctx)
	}
}

// Result returns the outcome of a finished request. It fails with
// errors.CodeConflict while the request is still running.
func (h *Handle) Result() (*todo.Result, error) {
	select {
	case <-h.done:
		return h.outcome()
	default:
		return nil, errors.WithContext(
			errors.New(errors.CodeConflict, "request is still running"),
			"request_id", h.ID,
		)
	}
}

// Cancel stops the request. It ends with a failed event carrying
// errors.CodeCancelled unless it already finished.
func (h *Handle) Cancel() {
	h.cancel()
}

// Subscribe replays the request's events and follows them until the
// terminal event.
func (h *Handle) Subscribe(ctx context.Context) (*progress.Subscription, error) {
	return h.bus.Subscribe(ctx, h.ID)
}

func (h *Handle) outcome() (*todo.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

func (h *Handle) finish(result *todo.Result, err error, at time.Time) {
	h.mu.Lock()
	h.result, h.err, h.finishedAt = result, err, at
	h.mu.Unlock()
	close(h.done)
}

func (h *Handle) finishedBefore(cutoff time.Time) bool {
	select {
	case <-h.done:
	default:
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finishedAt.Before(cutoff)
}

// Sweep forgets submitted requests that finished more than retention ago
// and discards their event logs, along with any other finished logs past
// retention. It returns the number of handles forgotten.
func (p *Pipeline) Sweep(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	p.mu.Lock()
	removed := 0
	for id, h := range p.requests {
		if h.finishedBefore(cutoff) {
			delete(p.requests, id)
			removed++
		}
	}
	p.mu.Unlock()

	p.bus.Sweep(retention)
	return removed
}

// StartSweeper runs Sweep every interval until the returned stop function
// is called. stop is idempotent and waits for the goroutine to exit.
func (p *Pipeline) StartSweeper(interval, retention time.Duration) (stop func()) {
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
				if n := p.Sweep(retention); n > 0 {
					p.logger.Debug(ctx, "forgot finished requests", "count", n)
				}
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
