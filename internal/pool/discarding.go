package pool

import (
	"context"
	"fmt"
	"sync"
)

// DiscardingPool runs jobs on a single worker with a single pending slot. A
// submission replaces any job still waiting in the slot; the replaced job's
// future completes with ErrDiscarded. Only the latest request wins, which
// suits previews. Its jobs cannot submit to or wait on a WorkerPool.
type DiscardingPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *task
	closed  bool
	dropped uint64
	done    chan struct{}
}

// NewDiscardingPool starts the worker goroutine.
func NewDiscardingPool() *DiscardingPool {
	p := &DiscardingPool{done: make(chan struct{})}
	p.cond = sync.NewCond(&p.mu)
	go p.worker()
	return p
}

func (p *DiscardingPool) worker() {
	defer close(p.done)
	for {
		p.mu.Lock()
		for p.pending == nil && !p.closed {
			p.cond.Wait()
		}
		if p.pending == nil && p.closed {
			p.mu.Unlock()
			return
		}
		t := p.pending
		p.pending = nil
		p.mu.Unlock()

		t.future.complete(run(t.ctx, p, t.job))
	}
}

// Submit places job in the slot without blocking.
func (p *DiscardingPool) Submit(ctx context.Context, job Job) (*Future, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("discarding pool: %w", ErrClosed)
	}
	if p.pending != nil {
		p.dropped++
		p.pending.future.complete(ErrDiscarded)
	}
	f := newFuture()
	p.pending = &task{ctx: ctx, job: job, future: f}
	p.cond.Signal()
	return f, nil
}

// Dropped returns how many jobs were superseded before they ran.
func (p *DiscardingPool) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close runs the pending job, if any, then stops the worker.
func (p *DiscardingPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	p.cond.Signal()
	p.mu.Unlock()
	<-p.done
}
