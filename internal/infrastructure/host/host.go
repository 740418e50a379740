// Package host provides headless implementations of the host ports, used by
// the CLI when no terminal UI is attached and by tests.
package host

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alexisbeaulieu97/diva/internal/ports"
)

// Loop is a UI thread backed by one goroutine draining an unbounded FIFO.
// RunLater never blocks, so workers can always hand results over.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	stopped chan struct{}
}

var _ ports.UIThread = (*Loop)(nil)

// NewLoop starts the loop goroutine.
func NewLoop() *Loop {
	l := &Loop{stopped: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
	}
}

// RunLater queues fn. Calls after Close run inline.
func (l *Loop) RunLater(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		fn()
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	l.mu.Unlock()
}

// Close drains queued callbacks and stops the loop.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.stopped
}

// LogStatus writes status updates to a logger at debug level.
type LogStatus struct {
	Log ports.Logger
}

func (s LogStatus) Status(title, message string, progress float64) {
	if s.Log == nil {
		return
	}
	s.Log.Debug(context.Background(), "status", "title", title, "status_message", message, "progress", progress)
}

// LogErrors reports errors through a logger. The task layer already logged
// the failure with full context, so this only keeps a user facing line.
type LogErrors struct {
	Log ports.Logger
}

func (e LogErrors) ShowError(err error) {
	if e.Log == nil || err == nil {
		return
	}
	e.Log.Warn(context.Background(), "operation failed", "error", err)
}

// FixedAnswer is a Confirmer that always returns the same answer, as with
// the CLI --yes flag.
type FixedAnswer ports.Answer

func (a FixedAnswer) Confirm(string) ports.Answer { return ports.Answer(a) }

// Busy is a reference counted busy indicator. The indicator is active while
// at least one engagement is unreleased.
type Busy struct {
	count    atomic.Int32
	OnChange func(busy bool)
}

// Engage activates the indicator and returns its idempotent release.
func (b *Busy) Engage() func() {
	if b.count.Add(1) == 1 && b.OnChange != nil {
		b.OnChange(true)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if b.count.Add(-1) == 0 && b.OnChange != nil {
				b.OnChange(false)
			}
		})
	}
}

// Active reports whether the indicator is engaged.
func (b *Busy) Active() bool { return b.count.Load() > 0 }
