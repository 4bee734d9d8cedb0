package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/git"
	"github.com/jmgilman/willdolater/git/cache"
	"github.com/jmgilman/willdolater/logging"
	"github.com/jmgilman/willdolater/progress"
)

// DefaultAcquireTimeout bounds a single clone or update.
const DefaultAcquireTimeout = 10 * time.Minute

// Sink receives progress events. It must not block.
type Sink func(progress.Event)

// Acquirer produces an up-to-date working copy for an identifier.
type Acquirer struct {
	store   *cache.Store
	driver  git.Driver
	timeout time.Duration
	logger  *logging.Logger
	tracer  trace.Tracer
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithAcquireTimeout bounds each clone or update. Zero disables the bound.
func WithAcquireTimeout(d time.Duration) AcquirerOption {
	return func(a *Acquirer) {
		a.timeout = d
	}
}

// WithAcquireLogger sets the logger.
func WithAcquireLogger(logger *logging.Logger) AcquirerOption {
	return func(a *Acquirer) {
		a.logger = logger
	}
}

// WithAcquireTracer sets the tracer used for acquisition spans.
func WithAcquireTracer(tracer trace.Tracer) AcquirerOption {
	return func(a *Acquirer) {
		a.tracer = tracer
	}
}

// NewAcquirer creates an Acquirer that keeps working copies in store and
// fetches them with driver.
func NewAcquirer(store *cache.Store, driver git.Driver, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		store:   store,
		driver:  driver,
		timeout: DefaultAcquireTimeout,
		logger:  logging.NewNop(),
		tracer:  noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire clones id into the cache, or updates the existing copy, and
// returns a shared lease on the result. The caller must release the lease.
//
// Requests for the same identifier are serialized: a second caller waits
// until the first has finished cloning or updating and then reuses the copy.
// A failed clone, or an update failing for a permanent reason, removes the
// entry so the next request starts from a fresh clone.
func (a *Acquirer) Acquire(ctx context.Context, id git.Identifier, sink Sink) (*cache.Lease, error) {
	if sink == nil {
		sink = func(progress.Event) {}
	}

	ctx, span := a.tracer.Start(ctx, "pipeline.acquire",
		trace.WithAttributes(attribute.String("repository", id.String())))
	defer span.End()

	logger := a.logger.WithRepository(id.Key())

	if entry, ok := a.store.Lookup(id); ok && entry.Held {
		sink(event(progress.StageAcquiring, "waiting for another request on this repository", 0))
	}

	guard, err := a.store.Acquire(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "guard")
		return nil, err
	}

	lease, err := a.refresh(ctx, guard, sink, logger)
	if err != nil {
		guard.Release()
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire")
		return nil, err
	}
	return lease, nil
}

func (a *Acquirer) refresh(ctx context.Context, guard *cache.Guard, sink Sink, logger *logging.Logger) (*cache.Lease, error) {
	id := guard.Identifier()
	_, exists := guard.Entry()

	stepCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	if exists {
		sink(event(progress.StageAcquiring, "updating", 10))
		if err := a.driver.Update(stepCtx, guard.Path()); err != nil {
			if ctx.Err() != nil {
				return nil, errors.FromContext(ctx)
			}
			if !errors.IsRetryable(err) {
				if derr := guard.Discard(); derr != nil {
					logger.Warn(ctx, "failed to discard working copy", "error", derr)
				}
			}
			logger.Warn(ctx, "update failed", "error", err, logging.Duration(start))
			return nil, acquisitionError(err, id, "update")
		}
		logger.Info(ctx, "updated working copy", logging.Duration(start))
	} else {
		sink(event(progress.StageAcquiring, "cloning", 10))
		if err := a.driver.Clone(stepCtx, id, guard.Path()); err != nil {
			if derr := guard.Discard(); derr != nil {
				logger.Warn(ctx, "failed to discard partial clone", "error", derr)
			}
			if ctx.Err() != nil {
				return nil, errors.FromContext(ctx)
			}
			logger.Warn(ctx, "clone failed", "error", err, logging.Duration(start))
			return nil, acquisitionError(err, id, "clone")
		}
		logger.Info(ctx, "cloned working copy", logging.Duration(start))
	}

	if err := guard.Record(); err != nil {
		return nil, acquisitionError(err, id, "record")
	}

	sink(event(progress.StageAcquiring, "done", 30))
	return guard.Downgrade(), nil
}

func acquisitionError(err error, id git.Identifier, op string) error {
	wrapped := errors.Wrapf(err, errors.CodeAcquisitionFailed, "%s %s", op, id.DisplayName())
	return errors.WithContextMap(wrapped, map[string]interface{}{
		"repository": id.String(),
		"operation":  op,
	})
}

func event(stage progress.Stage, message string, percent int) progress.Event {
	return progress.Event{Stage: stage, Message: message, Percent: progress.Percent(percent)}
}
