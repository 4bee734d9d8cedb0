package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/git"
	"github.com/jmgilman/willdolater/logging"
	"github.com/jmgilman/willdolater/progress"
	"github.com/jmgilman/willdolater/todo"
)

const tracerName = "github.com/jmgilman/willdolater/pipeline"

// Pipeline finds the oldest marker in a repository: it acquires a working
// copy, scans it for candidates, attributes each candidate and selects the
// oldest. Every run publishes its progress to the bus under its request id
// and ends with exactly one terminal event.
type Pipeline struct {
	acquirer     *Acquirer
	scanner      *todo.Scanner
	attributor   *todo.Attributor
	bus          *progress.Bus
	contextLines int
	logger       *logging.Logger
	tracer       trace.Tracer

	mu       sync.Mutex
	requests map[string]*Handle
	wg       sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithContextLines sets how many lines around the winner are returned.
// Negative values disable the snippet.
func WithContextLines(n int) Option {
	return func(p *Pipeline) {
		p.contextLines = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithTracerProvider sets the provider for request spans. The default
// records nothing.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) {
		p.tracer = tp.Tracer(tracerName)
	}
}

// New creates a Pipeline from its stages. Events are published to bus.
func New(acquirer *Acquirer, scanner *todo.Scanner, attributor *todo.Attributor, bus *progress.Bus, opts ...Option) *Pipeline {
	p := &Pipeline{
		acquirer:     acquirer,
		scanner:      scanner,
		attributor:   attributor,
		bus:          bus,
		contextLines: todo.DefaultContextLines,
		logger:       logging.NewNop(),
		tracer:       noop.NewTracerProvider().Tracer(tracerName),
		requests:     make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bus returns the bus the pipeline publishes to.
func (p *Pipeline) Bus() *progress.Bus {
	return p.bus
}

// Run scans repository synchronously under requestID. The request's events
// are available on the bus as soon as Run starts, and the outcome is both
// returned and published as the terminal event.
//
// A request with no candidates succeeds with an empty Result.
func (p *Pipeline) Run(ctx context.Context, requestID, repository string) (*todo.Result, error) {
	if err := p.bus.Open(requestID); err != nil {
		return nil, err
	}
	return p.run(ctx, requestID, repository)
}

// Submit starts a scan of repository in the background and returns its
// handle. The request outlives ctx; use Handle.Cancel to stop it. Values
// carried by ctx, such as the trace span, are kept.
func (p *Pipeline) Submit(ctx context.Context, repository string) (*Handle, error) {
	id := uuid.NewString()
	if err := p.bus.Open(id); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{
		ID:         id,
		Repository: repository,
		bus:        p.bus,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	p.mu.Lock()
	p.requests[id] = h
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		result, err := p.run(runCtx, id, repository)
		h.finish(result, err, time.Now())
	}()
	return h, nil
}

// Lookup returns the handle of a submitted request.
func (p *Pipeline) Lookup(id string) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.requests[id]
	return h, ok
}

// Shutdown cancels every submitted request that is still running and waits
// for them to publish their terminal events, or for ctx to be done.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	for _, h := range p.requests {
		h.Cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.FromContext(ctx)
	}
}

func (p *Pipeline) run(ctx context.Context, requestID, repository string) (result *todo.Result, err error) {
	start := time.Now()
	logger := p.logger.WithRequest(requestID)
	rep := &reporter{bus: p.bus, id: requestID, logger: logger}

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("repository.raw", repository),
	))
	defer span.End()

	logger.Info(ctx, "request started", "repository", repository)
	defer func() {
		if err != nil {
			if ctx.Err() != nil && !errors.IsCancelled(err) {
				err = errors.Wrap(err, errors.CodeCancelled, "request cancelled")
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, string(errors.GetCode(err)))
			logger.Warn(ctx, "request failed", "error", err, "code", errors.GetCode(err), logging.Duration(start))
			rep.fail(err)
			return
		}
		logger.Info(ctx, "request finished",
			"candidates", result.Candidates,
			"attributed", result.Attributed,
			logging.Duration(start))
		rep.complete(result)
	}()

	id, err := git.ParseIdentifier(repository)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("repository", id.String()))
	logger = logger.WithRepository(id.Key())

	lease, err := p.acquirer.Acquire(ctx, id, rep.emit)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	candidates, err := p.scan(ctx, lease.Path(), rep)
	if err != nil {
		return nil, err
	}

	attributed, err := p.attribute(ctx, lease.Path(), candidates, rep)
	if err != nil {
		return nil, err
	}

	if err := p.acquirer.store.Touch(id); err != nil {
		logger.Warn(ctx, "failed to touch cache entry", "error", err)
	}

	result = &todo.Result{
		Repository: id.String(),
		Candidates: len(candidates),
		Attributed: len(attributed),
	}

	oldest, ok := todo.Select(slices.Values(attributed))
	if !ok {
		return result, nil
	}

	result.Oldest = &oldest
	result.Permalink = id.Permalink(oldest.Commit, oldest.File, oldest.Line)
	if p.contextLines >= 0 {
		snippet, err := todo.ReadContext(osfs.New(lease.Path()), oldest.File, oldest.Line, p.contextLines)
		if err != nil {
			logger.Warn(ctx, "failed to read context", "file", oldest.File, "line", oldest.Line, "error", err)
		} else {
			result.Context = snippet
		}
	}
	return result, nil
}

func (p *Pipeline) scan(ctx context.Context, root string, rep *reporter) ([]todo.Candidate, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.scan")
	defer span.End()

	rep.emit(event(progress.StageScanning, "searching for markers", 30))
	candidates, err := p.scanner.Collect(ctx, root, func(found int) {
		rep.emit(progress.Event{
			Stage:   progress.StageScanning,
			Message: fmt.Sprintf("found %d candidates so far", found),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan")
		return nil, err
	}

	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	rep.emit(event(progress.StageScanning, fmt.Sprintf("found %d candidates", len(candidates)), 50))
	return candidates, nil
}

func (p *Pipeline) attribute(ctx context.Context, root string, candidates []todo.Candidate, rep *reporter) ([]todo.Attributed, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.attribute",
		trace.WithAttributes(attribute.Int("candidates", len(candidates))))
	defer span.End()

	rep.emit(event(progress.StageAttributing, fmt.Sprintf("attributing %d candidates", len(candidates)), 50))
	attributed, err := p.attributor.Attribute(ctx, root, candidates, func(done, total int) {
		rep.emit(event(progress.StageAttributing,
			fmt.Sprintf("attributed %d of %d", done, total),
			50+49*done/total))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attribute")
		return nil, err
	}

	span.SetAttributes(attribute.Int("attributed", len(attributed)))
	return attributed, nil
}

// reporter publishes one request's events. Publish failures are logged and
// otherwise ignored.
type reporter struct {
	bus    *progress.Bus
	id     string
	logger *logging.Logger
	once   sync.Once
}

func (r *reporter) emit(e progress.Event) {
	if err := r.bus.Publish(r.id, e); err != nil {
		r.logger.Debug(context.Background(), "dropped progress event", "stage", e.Stage, "error", err)
	}
}

func (r *reporter) complete(result *todo.Result) {
	r.once.Do(func() {
		msg := "no candidates found"
		if result.Oldest != nil {
			msg = fmt.Sprintf("oldest is %s:%d", result.Oldest.File, result.Oldest.Line)
		}
		r.emit(progress.Completed(result, msg))
	})
}

func (r *reporter) fail(err error) {
	r.once.Do(func() {
		r.emit(progress.Failed(err))
	})
}
