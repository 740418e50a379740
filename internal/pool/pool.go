// Package pool provides the two bounded execution resources of the engine: a
// general worker pool for processor work and a single-slot discarding pool
// for supersedable preview work. Pools are created by the caller and injected.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

var (
	// ErrClosed is returned when submitting to a closed pool.
	ErrClosed = errors.New("pool: closed")
	// ErrDiscarded completes the future of a task superseded before it ran.
	ErrDiscarded = errors.New("pool: task discarded by a newer submission")
)

// Job is a unit of pooled work. It receives only a context: jobs must not
// reach for the pool that runs them.
type Job func(ctx context.Context) error

type workerKey struct{}

// inWorker reports whether ctx belongs to a job running on any pool.
func inWorker(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	return ctx.Value(workerKey{}) != nil
}

// Future is the pending result of a submitted job.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the job finished or was discarded.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the job error once Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the job finishes or ctx is done. Waiting from inside a
// job of any pool fails immediately with ErrNestedWait: workers could
// otherwise end up waiting on work queued behind them, and the single
// preview worker would stall behind processor work.
func (f *Future) Wait(ctx context.Context) error {
	if inWorker(ctx) {
		return divaerrors.ErrNestedWait
	}
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func run(ctx context.Context, owner any, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = divaerrors.NewFaultError(r, debug.Stack())
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return job(context.WithValue(ctx, workerKey{}, owner))
}

type task struct {
	ctx    context.Context
	job    Job
	future *Future
}

// WorkerPool runs jobs on a fixed number of workers fed by a bounded queue.
type WorkerPool struct {
	name  string
	queue chan task
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts workers goroutines behind a queue of queueSize pending
// jobs.
func NewWorkerPool(name string, workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{name: name, queue: make(chan task, queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for t := range p.queue {
		t.future.complete(run(t.ctx, p, t.job))
	}
}

// Submit queues job, blocking while the queue is full. Pool jobs may not
// submit here, since they would hold their worker while blocking on the
// queue; such calls fail with ErrNestedWait.
func (p *WorkerPool) Submit(ctx context.Context, job Job) (*Future, error) {
	if inWorker(ctx) {
		return nil, divaerrors.ErrNestedWait
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, fmt.Errorf("%s: %w", p.name, ErrClosed)
	}
	f := newFuture()
	select {
	case p.queue <- task{ctx: ctx, job: job, future: f}:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting jobs, lets queued jobs finish and waits for workers.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
