package todo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/git"
	"github.com/jmgilman/willdolater/logging"
)

const (
	// DefaultConcurrency caps concurrent attribution calls per request.
	DefaultConcurrency = 8
	// DefaultAttributeTimeout bounds a single attribution call.
	DefaultAttributeTimeout = 30 * time.Second
)

// Attributor resolves candidates to the commits that last changed them.
type Attributor struct {
	driver      git.Driver
	concurrency int
	timeout     time.Duration
	cadence     Cadence
	logger      *logging.Logger
}

// AttributorOption configures an Attributor.
type AttributorOption func(*Attributor)

// WithConcurrency caps the number of attribution calls in flight.
func WithConcurrency(n int) AttributorOption {
	return func(a *Attributor) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithAttributeTimeout bounds each attribution call. Zero disables the
// bound.
func WithAttributeTimeout(d time.Duration) AttributorOption {
	return func(a *Attributor) {
		a.timeout = d
	}
}

// WithAttributeCadence sets how often progress is reported.
func WithAttributeCadence(c Cadence) AttributorOption {
	return func(a *Attributor) {
		a.cadence = c
	}
}

// WithAttributeLogger sets the attributor's logger.
func WithAttributeLogger(logger *logging.Logger) AttributorOption {
	return func(a *Attributor) {
		a.logger = logger
	}
}

// NewAttributor returns an Attributor that queries driver.
func NewAttributor(driver git.Driver, opts ...AttributorOption) *Attributor {
	a := &Attributor{
		driver:      driver,
		concurrency: DefaultConcurrency,
		timeout:     DefaultAttributeTimeout,
		cadence:     DefaultCadence,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attribute resolves every candidate in the working copy at root.
//
// A candidate whose attribution fails or times out is dropped and the rest
// continue. The returned slice keeps candidate order. The only error is the
// context's, when ctx is cancelled before all candidates are done.
//
// report, if not nil, receives the number of finished candidates at the
// configured cadence and once more when all are finished.
func (a *Attributor) Attribute(ctx context.Context, root string, candidates []Candidate, report func(done, total int)) ([]Attributed, error) {
	total := len(candidates)
	results := make([]*Attributed, total)
	limiter := a.cadence.limiter()

	var (
		mu   sync.Mutex
		done int
	)
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if report != nil {
			n := done
			limiter.Do(func() { report(n, total) })
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, c := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer finish()

			attr, err := a.attributeOne(gctx, root, c)
			if err != nil {
				if ctxErr := errors.FromContext(ctx); ctxErr != nil {
					return ctxErr
				}
				a.logger.Debug(ctx, "dropped candidate",
					"file", c.File,
					"line", c.Line,
					"code", errors.GetCode(err),
					"error", err,
				)
				return nil
			}
			results[i] = attr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}
	if report != nil && total > 0 {
		report(total, total)
	}

	out := make([]Attributed, 0, total)
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (a *Attributor) attributeOne(ctx context.Context, root string, c Candidate) (*Attributed, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	attr, err := a.driver.AttributeLine(ctx, root, c.File, c.Line)
	if err != nil {
		if git.IsNotAttributable(err) {
			return nil, err
		}
		return nil, errors.WithContextMap(
			errors.Wrap(err, errors.CodeAttributionFailed, "failed to attribute line"),
			map[string]interface{}{"file": c.File, "line": c.Line},
		)
	}

	return &Attributed{
		Candidate:  c,
		Commit:     attr.Commit,
		Author:     attr.Author,
		Email:      attr.Email,
		AuthoredAt: attr.AuthoredAt,
		Summary:    attr.Summary,
	}, nil
}
