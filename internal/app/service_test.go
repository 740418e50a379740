package app

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/diva/internal/config"
	"github.com/alexisbeaulieu97/diva/internal/engine"
	"github.com/alexisbeaulieu97/diva/internal/infrastructure/host"
	"github.com/alexisbeaulieu97/diva/internal/pool"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/processor"
	"github.com/alexisbeaulieu97/diva/internal/processor/processortest"
	"github.com/alexisbeaulieu97/diva/internal/project"
	"github.com/alexisbeaulieu97/diva/internal/store"
	"github.com/alexisbeaulieu97/diva/internal/task"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

const projectYAML = `version: "1.0"
name: app
pipelines:
  - id: 1
    name: scaled
    nodes:
      - {id: a, service: constant, params: {value: 3}}
      - {id: y, service: scale, params: {factor: 2}}
    edges:
      - {from: a.out, to: y.in}
  - id: 2
    name: broken
    nodes:
      - {id: f, service: fail}
  - id: 3
    name: blocking
    nodes:
      - {id: blk, service: block}
pages:
  - {id: 1, image: one.png}
  - {id: 2, image: two.png}
  - {id: 3, image: three.png, pipeline: 2}
  - {id: 4, image: four.png, pipeline: 3}
`

type statusLog struct {
	mu       sync.Mutex
	messages []string
}

func (s *statusLog) Status(_, message string, _ float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

func (s *statusLog) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (e *errorLog) ShowError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

type fixture struct {
	svc     *Service
	project *project.Project
	store   *store.Memory
	status  *statusLog
	errors  *errorLog
	busy    *host.Busy
	started chan string
	release chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.ProjectFileName)
	require.NoError(t, os.WriteFile(path, []byte(projectYAML), 0o644))

	f := &fixture{
		store:   store.NewMemory(),
		status:  &statusLog{},
		errors:  &errorLog{},
		busy:    &host.Busy{},
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	registry := processortest.Registry(nil, processortest.BlockService(nil, f.started, f.release))
	p, err := project.Load(path, project.Options{Resolver: registry, Store: f.store})
	require.NoError(t, err)
	f.project = p

	wp := pool.NewWorkerPool("app-test", 2, 16)
	previews := pool.NewDiscardingPool()
	t.Cleanup(func() {
		previews.Close()
		wp.Close()
		p.Close()
	})

	svc, err := NewService(Options{
		Project:  p,
		Pool:     wp,
		Previews: previews,
		Host:     ports.Host{Status: f.status, Errors: f.errors, Busy: f.busy},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewService_RequiresProjectAndPool(t *testing.T) {
	t.Parallel()

	_, err := NewService(Options{})
	require.Error(t, err)
	_, err = NewService(Options{Project: &project.Project{}})
	require.Error(t, err)
}

func TestProcessPage_SinglePage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tk, err := f.svc.ProcessPage(context.Background(), 1, nil)
	require.NoError(t, err)
	batch, err := tk.Wait()
	require.NoError(t, err)

	require.Equal(t, task.Succeeded, tk.Result())
	require.Equal(t, engine.OutcomeSucceeded, batch.Outcome)
	require.Len(t, batch.Pages, 1)
	assert.Contains(t, f.store.Snapshot(), "pages/1/y/out.bmat")
	assert.Equal(t, "Processing pipelines... done.", f.status.last())
	assert.False(t, f.busy.Active())
}

func TestProcessPage_UnknownPage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.ProcessPage(context.Background(), 42, nil)
	require.Error(t, err)
	_, err = f.svc.ResetPage(context.Background(), 42)
	require.Error(t, err)
}

func TestProcessPages_FailureFailsTaskButKeepsBatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	one, _ := f.project.Page(1)
	three, _ := f.project.Page(3)
	timings := engine.NewTimingLogger()

	tk := f.svc.ProcessPages(context.Background(), []*project.Page{three, one}, timings)
	batch, err := tk.Wait()
	require.ErrorIs(t, err, processortest.ErrBoom)
	require.Equal(t, task.Failed, tk.Result())

	require.NotNil(t, batch)
	failed, ok := batch.Page(3)
	require.True(t, ok)
	assert.Equal(t, engine.OutcomeFailed, failed.Outcome)
	succeeded, ok := batch.Page(1)
	require.True(t, ok)
	assert.Equal(t, engine.OutcomeSucceeded, succeeded.Outcome)
	assert.NotEmpty(t, timings.Entries())

	f.errors.mu.Lock()
	defer f.errors.mu.Unlock()
	require.Len(t, f.errors.errs, 1)
	require.ErrorIs(t, f.errors.errs[0], processortest.ErrBoom)
}

func TestProcessPage_Cancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tk, err := f.svc.ProcessPage(context.Background(), 4, nil)
	require.NoError(t, err)

	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("blocking processor never started")
	}
	tk.Cancel()

	batch, err := tk.Wait()
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, task.Cancelled, tk.Result())
	require.Equal(t, engine.OutcomeCancelled, batch.Outcome)
	assert.False(t, f.busy.Active())
	assert.Empty(t, f.errors.errs)

	for key := range f.store.Snapshot() {
		assert.NotContains(t, key, "pages/4/")
	}
}

func TestResetPage_DeletesState(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	one, _ := f.project.Page(1)
	two, _ := f.project.Page(2)
	_, err := f.svc.ProcessPages(ctx, []*project.Page{one, two}, nil).Wait()
	require.NoError(t, err)
	require.Contains(t, f.store.Snapshot(), "pages/2/y/out.bmat")

	reset, err := f.svc.ResetPage(ctx, 2)
	require.NoError(t, err)
	n, err := reset.Wait()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	snapshot := f.store.Snapshot()
	assert.NotContains(t, snapshot, "pages/2/y/out.bmat")
	assert.Contains(t, snapshot, "pages/1/y/out.bmat")
	assert.Equal(t, "Resetting pipelines... done.", f.status.last())
}

func TestResetPages_SkipsBusyPages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	one, _ := f.project.Page(1)
	two, _ := f.project.Page(2)
	require.True(t, one.TryLock())
	defer one.Unlock()

	n, err := f.svc.ResetPages(context.Background(), []*project.Page{one, two}).Wait()
	require.ErrorIs(t, err, divaerrors.ErrPageBusy)
	require.Equal(t, 1, n)
}

func TestPreview_RendersPersistedOutput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.svc.ProcessPage(ctx, 1, nil)
	require.NoError(t, err)
	_, err = tk.Wait()
	require.NoError(t, err)

	got := make(chan *Preview, 1)
	future, err := f.svc.Preview(ctx, PreviewRequest{PageID: 1, Node: "y", Port: "out", MaxSize: 1}, func(p *Preview, err error) {
		assert.NoError(t, err)
		got <- p
	})
	require.NoError(t, err)
	require.NoError(t, future.Wait(ctx))

	preview := <-got
	require.Equal(t, "y", preview.Node)
	decoded, err := png.Decode(bytes.NewReader(preview.PNG))
	require.NoError(t, err)
	assert.Equal(t, 1, decoded.Bounds().Dx())
	assert.Equal(t, 1, decoded.Bounds().Dy())
}

func TestPreview_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Preview(ctx, PreviewRequest{PageID: 9}, nil)
	require.Error(t, err)

	cases := []PreviewRequest{
		{PageID: 2, Node: "y", Port: "out"},
		{PageID: 2, Node: "zz", Port: "out"},
		{PageID: 2, Node: "y", Port: "nope"},
	}
	for _, req := range cases {
		future, err := f.svc.Preview(ctx, req, nil)
		require.NoError(t, err)
		require.Error(t, future.Wait(ctx))
	}
}

func TestPreview_DuringProcessingLeavesStoreAlone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.svc.ProcessPage(ctx, 1, nil)
	require.NoError(t, err)
	_, err = tk.Wait()
	require.NoError(t, err)

	// A run in progress holds the page and has already rewritten the
	// fingerprint of y.
	one, _ := f.project.Page(1)
	require.True(t, one.TryLock())
	defer one.Unlock()
	require.NoError(t, f.store.Write(ctx, "pages/1/y/"+processor.FingerprintKey, []byte("next run")))
	before := f.store.Snapshot()

	future, err := f.svc.Preview(ctx, PreviewRequest{PageID: 1, Node: "y", Port: "out"}, nil)
	require.NoError(t, err)
	require.Error(t, future.Wait(ctx))

	_, _, err = one.State(ctx)
	require.NoError(t, err)
	require.Equal(t, before, f.store.Snapshot())
}

func TestManifestAndVerify(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	pages, err := f.svc.Pages(1)
	require.NoError(t, err)

	before, err := f.svc.Manifest(ctx, pages)
	require.NoError(t, err)
	assert.Equal(t, "page 1 \"one.png\" pipeline=1 state=WAITING\n", string(before))

	tk, err := f.svc.ProcessPage(ctx, 1, nil)
	require.NoError(t, err)
	_, err = tk.Wait()
	require.NoError(t, err)

	after, err := f.svc.Manifest(ctx, pages)
	require.NoError(t, err)
	assert.Contains(t, string(after), "state=READY")
	assert.Contains(t, string(after), "  y/out.bmat ")
	assert.Contains(t, string(after), " sha256:")

	again, err := f.svc.Manifest(ctx, pages)
	require.NoError(t, err)
	require.Equal(t, after, again)

	v, err := f.svc.Verify(ctx, pages, after, "recorded")
	require.NoError(t, err)
	assert.True(t, v.OK())
	assert.Empty(t, v.Diff)

	v, err = f.svc.Verify(ctx, pages, before, "recorded")
	require.NoError(t, err)
	assert.False(t, v.OK())
	assert.Equal(t, 1, v.Stats.Removed)
	assert.Contains(t, v.Diff, "--- recorded")
	assert.Contains(t, v.Diff, "+  y/out.bmat ")
}
