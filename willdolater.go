// Package willdolater finds the oldest TODO in a git repository and names
// the commit and author that introduced it.
//
// Service wires a validated config.Config into the cache store, the
// janitor, the progress bus and the scan pipeline:
//
//	cfg, err := config.Load("willdolater.yaml")
//	if err != nil {
//		return err
//	}
//	svc, err := willdolater.New(cfg)
//	if err != nil {
//		return err
//	}
//	svc.Start()
//	defer svc.Close(context.Background())
//
//	h, err := svc.Submit(ctx, "github.com/owner/repo")
package willdolater

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/jmgilman/willdolater/config"
	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/git"
	"github.com/jmgilman/willdolater/git/cache"
	"github.com/jmgilman/willdolater/logging"
	"github.com/jmgilman/willdolater/pipeline"
	"github.com/jmgilman/willdolater/progress"
	"github.com/jmgilman/willdolater/search"
	"github.com/jmgilman/willdolater/todo"
)

// Service is a configured scan pipeline together with its background
// maintenance.
type Service struct {
	config   *config.Config
	logger   *logging.Logger
	store    *cache.Store
	bus      *progress.Bus
	pipeline *pipeline.Pipeline

	mu    sync.Mutex
	stops []func()
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger         *logging.Logger
	tracerProvider trace.TracerProvider
	gitDriver      git.Driver
	searchDriver   search.Driver
}

// WithLogger replaces the logger built from the log settings.
func WithLogger(logger *logging.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithTracerProvider enables request tracing.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *serviceOptions) {
		o.tracerProvider = tp
	}
}

// WithGitDriver replaces the driver selected by git.driver.
func WithGitDriver(d git.Driver) Option {
	return func(o *serviceOptions) {
		o.gitDriver = d
	}
}

// WithSearchDriver replaces the driver selected by search.driver.
func WithSearchDriver(d search.Driver) Option {
	return func(o *serviceOptions) {
		o.searchDriver = d
	}
}

// New builds a Service from cfg. Background maintenance does not run until
// Start is called.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.New(logging.Config{
			Level:  cfg.Log.Level,
			Format: logging.Format(cfg.Log.Format),
		})
	}
	if o.gitDriver == nil {
		o.gitDriver = gitDriver(cfg.Git)
	}
	if o.searchDriver == nil {
		o.searchDriver = searchDriver(cfg.Search)
	}

	patterns, err := search.NewPatterns(cfg.Search.Patterns, cfg.Search.Regex)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid search patterns")
	}

	store, err := cache.NewStore(cfg.Cache.Dir, cache.WithLogger(o.logger.WithOperation("cache")))
	if err != nil {
		return nil, err
	}

	bus := progress.NewBus(
		progress.WithSubscriberBuffer(cfg.Progress.SubscriberBuffer),
		progress.WithLogger(o.logger.WithOperation("progress")),
	)

	cadence := todo.Cadence{Every: cfg.Pipeline.ProgressEvery, Interval: cfg.Pipeline.ProgressInterval}

	acquirerOpts := []pipeline.AcquirerOption{
		pipeline.WithAcquireTimeout(cfg.Pipeline.AcquireTimeout),
		pipeline.WithAcquireLogger(o.logger.WithOperation("acquire")),
	}
	pipelineOpts := []pipeline.Option{
		pipeline.WithContextLines(cfg.Pipeline.ContextLines),
		pipeline.WithLogger(o.logger.WithOperation("pipeline")),
	}
	if o.tracerProvider != nil {
		acquirerOpts = append(acquirerOpts, pipeline.WithAcquireTracer(o.tracerProvider.Tracer("github.com/jmgilman/willdolater/pipeline")))
		pipelineOpts = append(pipelineOpts, pipeline.WithTracerProvider(o.tracerProvider))
	}

	p := pipeline.New(
		pipeline.NewAcquirer(store, o.gitDriver, acquirerOpts...),
		todo.NewScanner(o.searchDriver, patterns,
			todo.WithScanCadence(cadence),
			todo.WithScanLogger(o.logger.WithOperation("scan")),
		),
		todo.NewAttributor(o.gitDriver,
			todo.WithConcurrency(cfg.Pipeline.AttributeConcurrency),
			todo.WithAttributeTimeout(cfg.Pipeline.AttributeTimeout),
			todo.WithAttributeCadence(cadence),
			todo.WithAttributeLogger(o.logger.WithOperation("attribute")),
		),
		bus,
		pipelineOpts...,
	)

	return &Service{
		config:   cfg,
		logger:   o.logger,
		store:    store,
		bus:      bus,
		pipeline: p,
	}, nil
}

func gitDriver(cfg config.GitConfig) git.Driver {
	if cfg.Driver == config.DriverNative {
		return git.NewNativeDriver(git.WithNativeCloneDepth(cfg.CloneDepth))
	}
	return git.NewCLIDriver(
		git.WithBinary(cfg.Binary),
		git.WithCloneDepth(cfg.CloneDepth),
		git.WithCloneFilter(cfg.CloneFilter),
	)
}

func searchDriver(cfg config.SearchConfig) search.Driver {
	if cfg.Driver == config.DriverNative {
		return search.NewNativeDriver(search.WithNativeMaxColumns(cfg.MaxColumns))
	}
	return search.NewRipgrepDriver(
		search.WithBinary(cfg.Binary),
		search.WithMaxColumns(cfg.MaxColumns),
	)
}

// Start launches the cache janitor and the request sweeper. Calling it
// again has no effect until Close.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stops) > 0 {
		return
	}

	s.stops = append(s.stops,
		s.store.StartJanitor(s.config.Cache.JanitorInterval, cache.PruneOlderThan(s.config.Cache.Retention)),
		s.pipeline.StartSweeper(s.config.Progress.SweepInterval, s.config.Progress.Retention),
	)
	s.logger.Info(context.Background(), "service started",
		"cache_dir", s.config.Cache.Dir,
		"git_driver", s.config.Git.Driver,
		"search_driver", s.config.Search.Driver,
	)
}

// Run scans repository synchronously. See pipeline.Pipeline.Run.
func (s *Service) Run(ctx context.Context, requestID, repository string) (*todo.Result, error) {
	return s.pipeline.Run(ctx, requestID, repository)
}

// Submit starts a background scan of repository. See
// pipeline.Pipeline.Submit.
func (s *Service) Submit(ctx context.Context, repository string) (*pipeline.Handle, error) {
	return s.pipeline.Submit(ctx, repository)
}

// Lookup returns the handle of a submitted request.
func (s *Service) Lookup(id string) (*pipeline.Handle, bool) {
	return s.pipeline.Lookup(id)
}

// Subscribe follows the events of any request, submitted or run.
func (s *Service) Subscribe(ctx context.Context, requestID string) (*progress.Subscription, error) {
	return s.bus.Subscribe(ctx, requestID)
}

// Cache lists the cached working copies.
func (s *Service) Cache() []cache.Entry {
	return s.store.Entries()
}

// Evict removes the working copy of repository. It fails with
// errors.CodeCacheBusy while a request is using it.
func (s *Service) Evict(repository string) error {
	id, err := git.ParseIdentifier(repository)
	if err != nil {
		return err
	}
	return s.store.Remove(id)
}

// Close stops background maintenance, cancels running requests and waits
// for them to finish or for ctx to be done, then closes the bus.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	stops := s.stops
	s.stops = nil
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}

	err := s.pipeline.Shutdown(ctx)
	s.bus.Close()
	return err
}
