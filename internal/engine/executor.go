package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/processor"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// completion is sent by the waiter of a dispatched processor.
type completion struct {
	id       string
	err      error
	duration time.Duration
	started  time.Time
}

// Execute runs every processor of graph to READY. Processors are dispatched to
// the worker pool once all their upstream processors are READY; independent
// branches run concurrently. A failure marks the processor ERROR and blocks
// its descendants only. Cancelling the context stops dispatching, and running
// processors reset themselves at their next checkpoint.
//
// The returned error is reserved for misuse; processor failures are reported
// in the PageResult.
func Execute(execCtx *ExecutionContext, graph *Graph) (*PageResult, error) {
	if execCtx == nil {
		return nil, divaerrors.NewExecutionError(0, "", fmt.Errorf("execution context is nil"))
	}
	if graph == nil {
		return nil, divaerrors.NewExecutionError(execCtx.PageID, "", fmt.Errorf("graph is nil"))
	}
	if execCtx.Pool == nil {
		return nil, divaerrors.NewExecutionError(execCtx.PageID, "", fmt.Errorf("worker pool is nil"))
	}
	e := &executor{
		c:        execCtx.withDefaults(),
		graph:    graph,
		outcomes: make(map[string]Outcome, len(graph.Nodes)),
		results:  make(map[string]ProcessorResult, len(graph.Nodes)),
		inFlight: make(map[string]bool, len(graph.Nodes)),
		done:     make(chan completion, len(graph.Nodes)),
	}
	return e.run(), nil
}

type executor struct {
	c     *ExecutionContext
	graph *Graph

	outcomes map[string]Outcome
	results  map[string]ProcessorResult
	// inFlight holds dispatched processors until their completion settles.
	inFlight map[string]bool
	running  int
	done     chan completion
}

func (e *executor) run() *PageResult {
	ctx := e.c.Context
	start := time.Now()

	stop := e.forwardStateChanges(ctx)
	defer stop()

	e.invalidateStale(ctx)

	for {
		if ctx.Err() == nil {
			e.dispatchEligible(ctx)
		}
		if e.running == 0 {
			break
		}
		e.settle(ctx, <-e.done)
	}

	for _, id := range e.graph.Order {
		if _, settled := e.outcomes[id]; !settled {
			e.record(ctx, id, OutcomeCancelled, ctx.Err(), 0, time.Time{})
		}
	}

	result := &PageResult{PageID: e.c.PageID, Pipeline: e.c.Pipeline, Duration: time.Since(start)}
	for _, id := range e.graph.Order {
		result.Processors = append(result.Processors, e.results[id])
	}
	result.settle()
	if result.Outcome == OutcomeCancelled {
		result.Err = ctx.Err()
	}
	return result
}

// invalidateStale resets READY processors downstream of a processor that
// has to recompute, so no stale output survives a partial run.
func (e *executor) invalidateStale(ctx context.Context) {
	for _, id := range e.graph.Order {
		proc := e.graph.Nodes[id].Processor
		switch processor.StateOf(proc) {
		case processor.StateProcessing, processor.StateWaiting:
		default:
			continue
		}
		for _, did := range e.graph.Descendants(id) {
			desc := e.graph.Nodes[did].Processor
			if processor.StateOf(desc) != processor.StateReady || !desc.Capabilities().Has(processor.CanReset) {
				continue
			}
			e.c.Logger.Debug(ctx, "invalidating stale outputs", ports.FieldPageID, e.c.PageID, "processor", did, "upstream", id)
			if err := desc.Reset(ctx); err != nil {
				e.c.Logger.Warn(ctx, "resetting stale processor failed", ports.FieldPageID, e.c.PageID, "processor", did, "error", err)
			}
		}
	}
}

// dispatchEligible walks the order once. Walking in topological order lets
// blocked and skipped outcomes propagate in a single pass.
func (e *executor) dispatchEligible(ctx context.Context) {
	for _, id := range e.graph.Order {
		if _, settled := e.outcomes[id]; settled || e.inFlight[id] {
			continue
		}
		node := e.graph.Nodes[id]

		upstreamDone := true
		for _, dep := range node.DependsOn {
			o, settled := e.outcomes[dep.ID]
			switch {
			case !settled:
				upstreamDone = false
			case !o.ok():
				e.record(ctx, id, OutcomeBlocked, fmt.Errorf("upstream processor %s %s", dep.ID, o), 0, time.Time{})
			}
			if _, blocked := e.outcomes[id]; blocked {
				break
			}
		}
		if _, blocked := e.outcomes[id]; blocked || !upstreamDone {
			continue
		}

		proc := node.Processor
		switch state := processor.StateOf(proc); state {
		case processor.StateReady:
			e.record(ctx, id, OutcomeSkipped, nil, 0, time.Time{})
		case processor.StateError:
			e.record(ctx, id, OutcomeFailed, proc.Err(), 0, time.Time{})
		case processor.StateUnavailable:
			e.record(ctx, id, OutcomeFailed, divaerrors.NewServiceError(proc.Name(), fmt.Errorf("processor service is not available")), 0, time.Time{})
		case processor.StateUnconnected:
			e.record(ctx, id, OutcomeFailed, divaerrors.NewValidationError(id, "required input is not connected", nil), 0, time.Time{})
		case processor.StateWaiting:
			e.record(ctx, id, OutcomeFailed, divaerrors.NewValidationError(id, "inputs not satisfied after upstream completed", nil), 0, time.Time{})
		default:
			if !proc.Capabilities().Has(processor.CanProcess) {
				e.record(ctx, id, OutcomeFailed, divaerrors.ErrNotSupported, 0, time.Time{})
				continue
			}
			if err := e.dispatch(ctx, node); err != nil {
				e.record(ctx, id, outcomeFor(err), err, 0, time.Time{})
			}
		}
	}
}

func (e *executor) dispatch(ctx context.Context, node *Node) error {
	id, proc := node.ID, node.Processor
	e.c.publish(ctx, ports.EventProcessingStarted,
		ports.FieldPageID, e.c.PageID, ports.FieldObject, id, ports.FieldKind, "processor")
	e.c.ExecLog.ProcessorStarted(e.c.PageID, id, proc.Name())
	e.c.Logger.Debug(ctx, "dispatching processor", ports.FieldPageID, e.c.PageID, "processor", id, "service", proc.Name())

	var started time.Time
	var duration time.Duration
	future, err := e.c.Pool.Submit(ctx, func(jobCtx context.Context) error {
		spanCtx, span := e.c.Tracer.StartSpan(jobCtx, "executor.processor",
			ports.FieldPageID, e.c.PageID, "processor", id, "service", proc.Name())
		defer span.End()

		started = time.Now()
		err := proc.Process(spanCtx)
		duration = time.Since(started)
		if err != nil {
			span.SetStatus(ports.SpanStatusError, err.Error())
		} else {
			span.SetStatus(ports.SpanStatusOK, "")
		}
		return err
	})
	if err != nil {
		return err
	}

	e.running++
	e.inFlight[id] = true
	go func() {
		<-future.Done()
		e.done <- completion{id: id, err: future.Err(), duration: duration, started: started}
	}()
	return nil
}

func (e *executor) settle(ctx context.Context, c completion) {
	e.running--
	delete(e.inFlight, c.id)
	proc := e.graph.Nodes[c.id].Processor

	switch {
	case c.err == nil && !processor.IsReady(proc):
		c.err = fmt.Errorf("processor finished without producing its outputs")
		fallthrough
	case c.err != nil && outcomeFor(c.err) == OutcomeFailed:
		e.fail(ctx, c.id, proc, c.err)
		e.record(ctx, c.id, OutcomeFailed, proc.Err(), c.duration, c.started)
	case c.err != nil:
		if proc.Capabilities().Has(processor.CanReset) {
			if err := proc.Reset(context.WithoutCancel(ctx)); err != nil {
				e.c.Logger.Warn(ctx, "resetting cancelled processor failed", ports.FieldPageID, e.c.PageID, "processor", c.id, "error", err)
			}
		}
		e.record(ctx, c.id, OutcomeCancelled, c.err, c.duration, c.started)
	default:
		e.record(ctx, c.id, OutcomeSucceeded, nil, c.duration, c.started)
	}
}

// fail discards partial state and leaves the processor in ERROR.
func (e *executor) fail(ctx context.Context, id string, proc processor.Processor, err error) {
	if proc.Capabilities().Has(processor.CanReset) {
		if rerr := proc.Reset(context.WithoutCancel(ctx)); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}
	execErr := divaerrors.NewExecutionError(e.c.PageID, id, err)
	proc.SetError(execErr)

	if divaerrors.IsFault(err) {
		e.c.Logger.Error(ctx, "unrecoverable fault in processor", ports.FieldPageID, e.c.PageID, "processor", id, "service", proc.Name(), "error", err)
		return
	}
	e.c.Logger.Error(ctx, "processor failed", ports.FieldPageID, e.c.PageID, "processor", id, "service", proc.Name(), "error", err)
}

func (e *executor) record(ctx context.Context, id string, outcome Outcome, err error, duration time.Duration, started time.Time) {
	proc := e.graph.Nodes[id].Processor
	if started.IsZero() {
		started = time.Now()
	}
	r := ProcessorResult{
		NodeID:    id,
		Service:   proc.Name(),
		Outcome:   outcome,
		State:     processor.StateOf(proc),
		Err:       err,
		Duration:  duration,
		Timestamp: started,
	}
	e.outcomes[id] = outcome
	e.results[id] = r

	switch outcome {
	case OutcomeBlocked, OutcomeCancelled:
		e.c.Logger.Info(ctx, "processor not run", ports.FieldPageID, e.c.PageID, "processor", id, "outcome", outcome, "reason", err)
	case OutcomeFailed:
		if duration == 0 {
			e.c.Logger.Warn(ctx, "processor cannot run", ports.FieldPageID, e.c.PageID, "processor", id, "state", r.State, "error", err)
		}
	}

	labels := map[string]string{"service": proc.Name(), "outcome": string(outcome)}
	e.c.count(ctx, "diva_processor_runs_total", labels)
	if duration > 0 {
		e.c.observe(ctx, "diva_processor_duration_seconds", duration.Seconds(), map[string]string{"service": proc.Name()})
	}
	e.c.ExecLog.ProcessorFinished(e.c.PageID, r)
	if outcome != OutcomeSkipped {
		e.c.publish(ctx, ports.EventProcessingFinished,
			ports.FieldPageID, e.c.PageID, ports.FieldObject, id, ports.FieldKind, "processor", ports.FieldOutcome, string(outcome))
	}
	if e.c.Progress != nil {
		e.c.Progress(len(e.outcomes), len(e.graph.Nodes))
	}
}

// forwardStateChanges republishes processor state transitions observed on
// port events as processor.state_changed events until the returned function
// is called.
func (e *executor) forwardStateChanges(ctx context.Context) func() {
	if e.c.Events == nil {
		return func() {}
	}
	var wg sync.WaitGroup
	var unsubscribers []func()
	for _, id := range e.graph.Order {
		proc := e.graph.Nodes[id].Processor
		events, unsubscribe := proc.Subscribe(16)
		unsubscribers = append(unsubscribers, unsubscribe)

		wg.Add(1)
		go func(id string, proc processor.Processor) {
			defer wg.Done()
			last := processor.StateOf(proc)
			for range events {
				state := processor.StateOf(proc)
				if state == last {
					continue
				}
				last = state
				e.c.publish(ctx, ports.EventProcessorStateChanged,
					ports.FieldPageID, e.c.PageID, ports.FieldObject, id, ports.FieldState, state.String())
			}
		}(id, proc)
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
		wg.Wait()
	}
}

func outcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
