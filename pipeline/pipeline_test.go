package pipeline_test

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/git"
	"github.com/jmgilman/willdolater/git/cache"
	"github.com/jmgilman/willdolater/git/testutil"
	"github.com/jmgilman/willdolater/pipeline"
	"github.com/jmgilman/willdolater/progress"
	"github.com/jmgilman/willdolater/search"
	"github.com/jmgilman/willdolater/todo"
)

// testDriver clones by copying the origin directory, so no git binary is
// needed, and attributes lines with the native driver.
type testDriver struct {
	native  *git.NativeDriver
	clones  atomic.Int32
	updates atomic.Int32

	cloneFunc     func(ctx context.Context, remote git.Identifier, dest string) error
	attributeFunc func(ctx context.Context, file string, line int) error
}

func newTestDriver() *testDriver {
	return &testDriver{native: git.NewNativeDriver()}
}

func (d *testDriver) Clone(ctx context.Context, remote git.Identifier, dest string) error {
	d.clones.Add(1)
	if d.cloneFunc != nil {
		return d.cloneFunc(ctx, remote, dest)
	}
	return os.CopyFS(dest, os.DirFS(remote.CloneURL()))
}

func (d *testDriver) Update(context.Context, string) error {
	d.updates.Add(1)
	return nil
}

func (d *testDriver) AttributeLine(ctx context.Context, path, file string, line int) (*git.Attribution, error) {
	if d.attributeFunc != nil {
		if err := d.attributeFunc(ctx, file, line); err != nil {
			return nil, err
		}
	}
	return d.native.AttributeLine(ctx, path, file, line)
}

type env struct {
	pipeline *pipeline.Pipeline
	store    *cache.Store
	bus      *progress.Bus
}

// failingSearch yields one match and then fails.
type failingSearch struct{}

func (failingSearch) Find(context.Context, string, search.Patterns) iter.Seq2[search.Match, error] {
	return func(yield func(search.Match, error) bool) {
		if !yield(search.Match{File: "a.go", Line: 1, Text: "// TODO: a"}, nil) {
			return
		}
		yield(search.Match{}, errors.New(errors.CodeExecutionFailed, "rg exited with status 2"))
	}
}

func newEnv(t *testing.T, driver git.Driver) *env {
	t.Helper()
	return newEnvWithSearch(t, driver, search.NewNativeDriver())
}

func newEnvWithSearch(t *testing.T, driver git.Driver, finder search.Driver) *env {
	t.Helper()

	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	bus := progress.NewBus()
	t.Cleanup(bus.Close)

	p := pipeline.New(
		pipeline.NewAcquirer(store, driver, pipeline.WithAcquireTimeout(time.Minute)),
		todo.NewScanner(finder, search.MustPatterns(search.DefaultPatterns, false)),
		todo.NewAttributor(driver, todo.WithConcurrency(2)),
		bus,
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return &env{pipeline: p, store: store, bus: bus}
}

func newOrigin(t *testing.T) *testutil.Repo {
	t.Helper()
	repo, err := testutil.NewRepo(filepath.Join(t.TempDir(), "origin"))
	require.NoError(t, err)
	return repo
}

func commit(t *testing.T, repo *testutil.Repo, msg string, when time.Time, files map[string]string) {
	t.Helper()
	_, err := repo.Commit(msg, testutil.At(when), files)
	require.NoError(t, err)
}

// threeMarkers commits markers whose authored order differs from commit
// order. The oldest is in b/a.go at line 5.
func threeMarkers(t *testing.T) *testutil.Repo {
	t.Helper()
	origin := newOrigin(t)
	commit(t, origin, "third", testutil.Epoch.Add(72*time.Hour), map[string]string{
		"c.go": "package c\n\n// TODO: three\n",
	})
	commit(t, origin, "first", testutil.Epoch, map[string]string{
		"b/a.go": "package a\n\nfunc A() {}\n\n// TODO: one\n",
	})
	commit(t, origin, "second", testutil.Epoch.Add(24*time.Hour), map[string]string{
		"a.go": "package main\n// TODO: two\n",
	})
	return origin
}

func stagesOf(events []progress.Event) []progress.Stage {
	var out []progress.Stage
	for _, e := range events {
		if len(out) == 0 || out[len(out)-1] != e.Stage {
			out = append(out, e.Stage)
		}
	}
	return out
}

func terminals(events []progress.Event) []progress.Event {
	var out []progress.Event
	for _, e := range events {
		if e.Terminal() {
			out = append(out, e)
		}
	}
	return out
}

func TestRun_OldestWins(t *testing.T) {
	origin := threeMarkers(t)
	e := newEnv(t, newTestDriver())

	result, err := e.pipeline.Run(context.Background(), "r1", origin.URL())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Candidates)
	assert.Equal(t, 3, result.Attributed)
	require.NotNil(t, result.Oldest)
	assert.Equal(t, "b/a.go", result.Oldest.File)
	assert.Equal(t, 5, result.Oldest.Line)
	assert.Equal(t, "// TODO: one", result.Oldest.Text)
	assert.True(t, result.Oldest.AuthoredAt.Equal(testutil.Epoch))
	assert.Equal(t, testutil.TestAuthor, result.Oldest.Author)
	assert.Equal(t, testutil.TestEmail, result.Oldest.Email)
	assert.Equal(t, "first", result.Oldest.Summary)
	assert.Len(t, result.Oldest.Commit, 40)
	assert.Empty(t, result.Permalink, "local repositories have no web view")

	require.NotNil(t, result.Context)
	assert.Equal(t, 3, result.Context.StartLine)
	assert.Equal(t, []string{"func A() {}", "", "// TODO: one"}, result.Context.Lines)

	events, ok := e.bus.Events("r1")
	require.True(t, ok)
	assert.Equal(t, []progress.Stage{
		progress.StageAcquiring,
		progress.StageScanning,
		progress.StageAttributing,
		progress.StageComplete,
	}, stagesOf(events))

	final := terminals(events)
	require.Len(t, final, 1)
	assert.Equal(t, result, final[0].Result)
	assert.Equal(t, 100, *final[0].Percent)

	last := -1
	for _, ev := range events {
		if ev.Percent != nil {
			assert.GreaterOrEqual(t, *ev.Percent, last, "percent never goes backwards")
			last = *ev.Percent
		}
	}
}

func TestRun_NoCandidates(t *testing.T) {
	origin := newOrigin(t)
	commit(t, origin, "init", testutil.Epoch, map[string]string{"main.go": "package main\n"})
	e := newEnv(t, newTestDriver())

	result, err := e.pipeline.Run(context.Background(), "r1", origin.URL())
	require.NoError(t, err)
	assert.Nil(t, result.Oldest)
	assert.Nil(t, result.Context)
	assert.Zero(t, result.Candidates)
	assert.Zero(t, result.Attributed)

	events, _ := e.bus.Events("r1")
	final := terminals(events)
	require.Len(t, final, 1)
	assert.Equal(t, progress.StageComplete, final[0].Stage)
	assert.Equal(t, "no candidates found", final[0].Message)
}

func TestRun_ConcurrentRequestsCloneOnce(t *testing.T) {
	origin := threeMarkers(t)
	driver := newTestDriver()
	e := newEnv(t, driver)

	var wg sync.WaitGroup
	results := make([]*todo.Result, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.pipeline.Run(context.Background(), []string{"a", "b"}[i], origin.URL())
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), driver.clones.Load())
	assert.Equal(t, int32(1), driver.updates.Load())
	assert.Equal(t, results[0].Oldest, results[1].Oldest)
	assert.Len(t, e.store.Entries(), 1)
}

func TestRun_AttributionFailureDropsCandidate(t *testing.T) {
	origin := newOrigin(t)
	commit(t, origin, "one", testutil.Epoch.Add(time.Hour), map[string]string{"a.go": "// TODO: a\n"})
	commit(t, origin, "two", testutil.Epoch.Add(2*time.Hour), map[string]string{"b.go": "// TODO: b\n"})
	commit(t, origin, "three", testutil.Epoch.Add(3*time.Hour), map[string]string{"c.go": "// TODO: c\n"})
	commit(t, origin, "zero", testutil.Epoch, map[string]string{"d.go": "// TODO: d\n"})

	driver := newTestDriver()
	driver.attributeFunc = func(_ context.Context, file string, _ int) error {
		if file == "d.go" {
			return errors.New(errors.CodeExecutionFailed, "blame crashed")
		}
		return nil
	}
	e := newEnv(t, driver)

	result, err := e.pipeline.Run(context.Background(), "r1", origin.URL())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Candidates)
	assert.Equal(t, 3, result.Attributed)
	require.NotNil(t, result.Oldest)
	assert.Equal(t, "a.go", result.Oldest.File)
}

func TestRun_Deterministic(t *testing.T) {
	origin := newOrigin(t)
	files := map[string]string{
		"z.go":     "// TODO: z\n",
		"a.go":     "package a\n// TODO: a2\n// TODO: a3\n",
		"m/m.go":   "// TODO: m\n",
		"notes.md": "TODO\n",
	}
	commit(t, origin, "all at once", testutil.Epoch, files)
	e := newEnv(t, newTestDriver())

	first, err := e.pipeline.Run(context.Background(), "r1", origin.URL())
	require.NoError(t, err)
	second, err := e.pipeline.Run(context.Background(), "r2", origin.URL())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.NotNil(t, first.Oldest)
	assert.Equal(t, "a.go", first.Oldest.File, "ties go to the smallest file")
	assert.Equal(t, 2, first.Oldest.Line)
}

func TestRun_InvalidIdentifier(t *testing.T) {
	driver := newTestDriver()
	e := newEnv(t, driver)

	_, err := e.pipeline.Run(context.Background(), "r1", "not a repository")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidIdentifier, errors.GetCode(err))
	assert.Zero(t, driver.clones.Load())

	events, _ := e.bus.Events("r1")
	require.Len(t, events, 1)
	assert.Equal(t, progress.StageFailed, events[0].Stage)
	require.NotNil(t, events[0].Error)
	assert.Equal(t, string(errors.CodeInvalidIdentifier), events[0].Error.Code)
}

func TestRun_CloneFailure(t *testing.T) {
	driver := newTestDriver()
	driver.cloneFunc = func(_ context.Context, _ git.Identifier, dest string) error {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return err
		}
		return errors.New(errors.CodeNotFound, "repository not found")
	}
	e := newEnv(t, driver)

	_, err := e.pipeline.Run(context.Background(), "r1", "https://github.com/owner/missing")
	require.Error(t, err)
	assert.Equal(t, errors.CodeAcquisitionFailed, errors.GetCode(err))
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	assert.Empty(t, e.store.Entries())

	id := git.MustParseIdentifier("https://github.com/owner/missing")
	_, statErr := os.Stat(e.store.PathFor(id))
	assert.True(t, os.IsNotExist(statErr), "partial clone is removed")

	events, _ := e.bus.Events("r1")
	final := terminals(events)
	require.Len(t, final, 1)
	assert.Equal(t, string(errors.CodeAcquisitionFailed), final[0].Error.Code)
}

func TestRun_ScanFailure(t *testing.T) {
	origin := newOrigin(t)
	commit(t, origin, "init", testutil.Epoch, map[string]string{"a.go": "// TODO: a\n"})
	e := newEnvWithSearch(t, newTestDriver(), failingSearch{})

	result, err := e.pipeline.Run(context.Background(), "r1", origin.URL())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, errors.CodeScanFailed, errors.GetCode(err))

	events, _ := e.bus.Events("r1")
	final := terminals(events)
	require.Len(t, final, 1)
	assert.Equal(t, progress.StageFailed, final[0].Stage)
	require.NotNil(t, final[0].Error)
	assert.Equal(t, string(errors.CodeScanFailed), final[0].Error.Code)
	assert.Equal(t, progress.StageFailed, events[len(events)-1].Stage)

	acquireCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	guard, err := e.store.Acquire(acquireCtx, git.MustParseIdentifier(origin.URL()))
	require.NoError(t, err, "lease is released after a failed scan")
	guard.Release()
}

func TestRun_DuplicateRequestID(t *testing.T) {
	origin := newOrigin(t)
	commit(t, origin, "init", testutil.Epoch, map[string]string{"main.go": "package main\n"})
	e := newEnv(t, newTestDriver())

	_, err := e.pipeline.Run(context.Background(), "r1", origin.URL())
	require.NoError(t, err)
	_, err = e.pipeline.Run(context.Background(), "r1", origin.URL())
	assert.Equal(t, errors.CodeConflict, errors.GetCode(err))
}

// blockingClone blocks until the request is cancelled and signals when it
// has started.
func blockingClone(started chan<- struct{}) func(context.Context, git.Identifier, string) error {
	return func(ctx context.Context, _ git.Identifier, _ string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
}

func TestSubmit_Cancel(t *testing.T) {
	started := make(chan struct{})
	driver := newTestDriver()
	driver.cloneFunc = blockingClone(started)
	e := newEnv(t, driver)

	h, err := e.pipeline.Submit(context.Background(), "https://github.com/owner/repo")
	require.NoError(t, err)

	sub, err := h.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	<-started
	h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = h.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
	assert.Equal(t, errors.CodeCancelled, errors.GetCode(err))

	var events []progress.Event
	for ev := range sub.Events() {
		events = append(events, ev)
	}
	final := terminals(events)
	require.Len(t, final, 1)
	assert.Equal(t, progress.StageFailed, final[0].Stage)
	assert.Equal(t, string(errors.CodeCancelled), final[0].Error.Code)

	id := git.MustParseIdentifier("https://github.com/owner/repo")
	acquireCtx, cancelAcquire := context.WithTimeout(context.Background(), time.Second)
	defer cancelAcquire()
	guard, err := e.store.Acquire(acquireCtx, id)
	require.NoError(t, err, "guard is released after cancellation")
	guard.Release()
}

func TestSubmit_CancelDuringAttribution(t *testing.T) {
	origin := threeMarkers(t)
	started := make(chan struct{})
	var once sync.Once
	driver := newTestDriver()
	driver.attributeFunc = func(ctx context.Context, _ string, _ int) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}
	e := newEnv(t, driver)

	h, err := e.pipeline.Submit(context.Background(), origin.URL())
	require.NoError(t, err)

	<-started
	h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = h.Wait(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.CodeCancelled, errors.GetCode(err))

	events, _ := e.bus.Events(h.ID)
	final := terminals(events)
	require.Len(t, final, 1)
	assert.Equal(t, progress.StageFailed, final[0].Stage)
	assert.Equal(t, string(errors.CodeCancelled), final[0].Error.Code)
	assert.Contains(t, stagesOf(events), progress.StageAttributing)

	acquireCtx, cancelAcquire := context.WithTimeout(context.Background(), time.Second)
	defer cancelAcquire()
	guard, err := e.store.Acquire(acquireCtx, git.MustParseIdentifier(origin.URL()))
	require.NoError(t, err, "lease is released after cancellation")
	guard.Release()
}

func TestSubmit_Handle(t *testing.T) {
	origin := threeMarkers(t)
	e := newEnv(t, newTestDriver())

	h, err := e.pipeline.Submit(context.Background(), origin.URL())
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID)

	found, ok := e.pipeline.Lookup(h.ID)
	require.True(t, ok)
	assert.Same(t, h, found)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := h.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Oldest)
	assert.Equal(t, "b/a.go", result.Oldest.File)

	again, err := h.Result()
	require.NoError(t, err)
	assert.Same(t, result, again)

	// A late subscriber still sees the full history.
	sub, err := h.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()
	var events []progress.Event
	for ev := range sub.Events() {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, progress.StageAcquiring, events[0].Stage)
	assert.Equal(t, progress.StageComplete, events[len(events)-1].Stage)
}

func TestSubmit_ResultWhileRunning(t *testing.T) {
	started := make(chan struct{})
	driver := newTestDriver()
	driver.cloneFunc = blockingClone(started)
	e := newEnv(t, driver)

	h, err := e.pipeline.Submit(context.Background(), "https://github.com/owner/repo")
	require.NoError(t, err)
	<-started

	_, err = h.Result()
	assert.Equal(t, errors.CodeConflict, errors.GetCode(err))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = h.Wait(ctx)
	assert.Equal(t, errors.CodeTimeout, errors.GetCode(err))

	select {
	case <-h.Done():
		t.Fatal("giving up on Wait must not cancel the request")
	default:
	}
	h.Cancel()
	<-h.Done()
}

func TestSubmit_OutlivesSubmitContext(t *testing.T) {
	origin := threeMarkers(t)
	e := newEnv(t, newTestDriver())

	ctx, cancel := context.WithCancel(context.Background())
	h, err := e.pipeline.Submit(ctx, origin.URL())
	require.NoError(t, err)
	cancel()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelWait()
	_, err = h.Wait(waitCtx)
	require.NoError(t, err)
}

func TestPipeline_Shutdown(t *testing.T) {
	started := make(chan struct{})
	driver := newTestDriver()
	driver.cloneFunc = blockingClone(started)
	e := newEnv(t, driver)

	h, err := e.pipeline.Submit(context.Background(), "https://github.com/owner/repo")
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.pipeline.Shutdown(ctx))

	_, err = h.Result()
	assert.True(t, errors.IsCancelled(err))
}

func TestPipeline_Sweep(t *testing.T) {
	origin := newOrigin(t)
	commit(t, origin, "init", testutil.Epoch, map[string]string{"main.go": "package main\n"})
	e := newEnv(t, newTestDriver())

	h, err := e.pipeline.Submit(context.Background(), origin.URL())
	require.NoError(t, err)
	<-h.Done()

	assert.Zero(t, e.pipeline.Sweep(time.Hour), "recent requests are kept")
	_, ok := e.pipeline.Lookup(h.ID)
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		e.pipeline.Sweep(0)
		_, ok := e.pipeline.Lookup(h.ID)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	_, ok = e.bus.Events(h.ID)
	assert.False(t, ok, "the event log goes with the request")
}

func TestPipeline_StartSweeper(t *testing.T) {
	origin := newOrigin(t)
	commit(t, origin, "init", testutil.Epoch, map[string]string{"main.go": "package main\n"})
	e := newEnv(t, newTestDriver())

	h, err := e.pipeline.Submit(context.Background(), origin.URL())
	require.NoError(t, err)
	<-h.Done()

	stop := e.pipeline.StartSweeper(5*time.Millisecond, 0)
	defer stop()

	require.Eventually(t, func() bool {
		_, ok := e.pipeline.Lookup(h.ID)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	stop()
	stop()
}
