// Package task runs long work in the background with a one-shot result
// lifecycle and completion hooks marshalled onto the host UI thread.
package task

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// Result is the lifecycle state of a task.
type Result int

const (
	Running Result = iota
	Succeeded
	Cancelled
	Failed
)

func (r Result) String() string {
	switch r {
	case Succeeded:
		return "SUCCEEDED"
	case Cancelled:
		return "CANCELLED"
	case Failed:
		return "FAILED"
	default:
		return "RUNNING"
	}
}

// Terminal reports whether r is a final result.
func (r Result) Terminal() bool { return r != Running }

// Func is the work of a task. It receives its own task to report progress.
type Func[T any] func(ctx context.Context, t *Task[T]) (T, error)

// Hooks are optional completion callbacks. They run once, on the UI thread,
// in field order: Finished always, Cleanup for cancelled or failed tasks,
// then the hook matching the result.
type Hooks[T any] struct {
	Finished  func(Result)
	Cleanup   func(Result)
	Succeeded func(T)
	Cancelled func()
	Failed    func(error)
}

// Task is a unit of background work.
type Task[T any] struct {
	id    string
	fn    Func[T]
	hooks Hooks[T]
	host  ports.Host
	log   ports.Logger

	mu       sync.RWMutex
	title    string
	message  string
	progress float64
	result   Result
	value    T
	err      error
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a task. host collaborators may be nil.
func New[T any](title string, fn Func[T], host ports.Host, log ports.Logger, hooks Hooks[T]) *Task[T] {
	if log == nil {
		log = logger.Nop()
	}
	return &Task[T]{
		id:       ports.GenerateCorrelationID(),
		fn:       fn,
		hooks:    hooks,
		host:     host,
		log:      log,
		title:    title,
		progress: -1,
		done:     make(chan struct{}),
	}
}

// ID returns the task id, also used as log correlation id.
func (t *Task[T]) ID() string { return t.id }

// Start runs the task on its own goroutine and returns t. Starting twice is a
// no-op.
func (t *Task[T]) Start(ctx context.Context) *Task[T] {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return t
	}
	t.started = true
	if ports.GetCorrelationID(ctx) == "" {
		ctx = ports.WithCorrelationID(ctx, t.id)
	}
	ctx, t.cancel = context.WithCancel(ctx)
	title := t.title
	t.mu.Unlock()

	if t.host.Events != nil {
		if err := t.host.Events.Publish(ctx, ports.NewEvent(ports.EventTaskStarted,
			ports.FieldTitle, title, "task_id", t.id)); err != nil {
			t.log.Warn(ctx, "publishing event failed", "event", ports.EventTaskStarted, "task", title, "error", err)
		}
	}
	t.report()

	go t.run(ctx)
	return t
}

func (t *Task[T]) run(ctx context.Context) {
	value, err := t.call(ctx)

	result := Succeeded
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(err, ctx.Err())):
		result = Cancelled
	default:
		result = Failed
	}
	t.cancel()

	t.runLater(func() {
		defer close(t.done)
		t.complete(ctx, result, value, err)
	})
}

func (t *Task[T]) call(ctx context.Context) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = divaerrors.NewFaultError(r, debug.Stack())
		}
	}()
	return t.fn(ctx, t)
}

func (t *Task[T]) complete(ctx context.Context, result Result, value T, err error) {
	if t.hooks.Finished != nil {
		t.hooks.Finished(result)
	}
	if result == Cancelled || result == Failed {
		if t.hooks.Cleanup != nil {
			t.hooks.Cleanup(result)
		}
	}

	t.mu.Lock()
	t.result = result
	t.value = value
	if result == Failed {
		t.err = err
	}
	title := t.title
	t.mu.Unlock()

	switch result {
	case Succeeded:
		if t.hooks.Succeeded != nil {
			t.hooks.Succeeded(value)
		}
	case Cancelled:
		t.log.Info(ctx, "background task cancelled", "task", title)
		if t.hooks.Cancelled != nil {
			t.hooks.Cancelled()
		}
	case Failed:
		if divaerrors.IsFault(err) {
			var fault *divaerrors.FaultError
			errors.As(err, &fault)
			t.log.Error(ctx, "unrecoverable fault in background task", "task", title, "error", err, "stack", string(fault.Stack))
		} else {
			t.log.Error(ctx, "background task failed", "task", title, "error", err)
		}
		if t.host.Errors != nil {
			t.host.Errors.ShowError(err)
		}
		if t.hooks.Failed != nil {
			t.hooks.Failed(err)
		}
	}
}

func (t *Task[T]) runLater(fn func()) {
	if t.host.UI == nil {
		fn()
		return
	}
	t.host.UI.RunLater(fn)
}

// Cancel requests cancellation. The task function observes it through ctx.
func (t *Task[T]) Cancel() {
	t.mu.RLock()
	cancel := t.cancel
	t.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed after every hook ran.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Wait blocks until the task completed and its hooks ran.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.result == Cancelled {
		return t.value, context.Canceled
	}
	return t.value, t.err
}

// Result returns the current lifecycle state.
func (t *Task[T]) Result() Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// Title returns the current title.
func (t *Task[T]) Title() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.title
}

// Message returns the current message.
func (t *Task[T]) Message() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.message
}

// Progress returns the current progress fraction, negative when indeterminate.
func (t *Task[T]) Progress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}

// UpdateTitle changes the title shown in the status channel.
func (t *Task[T]) UpdateTitle(title string) {
	t.mu.Lock()
	t.title = title
	t.mu.Unlock()
	t.report()
}

// UpdateMessage changes the status message.
func (t *Task[T]) UpdateMessage(message string) {
	t.mu.Lock()
	t.message = message
	t.mu.Unlock()
	t.report()
}

// UpdateProgress sets progress to done/total, or indeterminate when total
// is not positive.
func (t *Task[T]) UpdateProgress(done, total float64) {
	progress := -1.0
	if total > 0 {
		progress = min(max(done/total, 0), 1)
	}
	t.mu.Lock()
	t.progress = progress
	t.mu.Unlock()
	t.report()
}

func (t *Task[T]) report() {
	if t.host.Status == nil {
		return
	}
	t.mu.RLock()
	title, message, progress := t.title, t.message, t.progress
	t.mu.RUnlock()
	t.host.Status.Status(title, message, progress)
}
