package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/pipeline"
	"github.com/alexisbeaulieu97/diva/internal/pool"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/telemetry"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// Page is a unit of work for the controller: a page with its assigned
// pipeline and exclusive processing rights.
type Page interface {
	ID() int
	Name() string
	// TryLock acquires exclusive processing rights without blocking.
	TryLock() bool
	Unlock()
	// OpenPipeline opens the page pipeline bound to the page's persistence
	// store. The caller closes it.
	OpenPipeline(ctx context.Context) (*pipeline.Pipeline, error)
}

// ControllerOptions wires the controller's collaborators. Pool is required.
type ControllerOptions struct {
	Pool    *pool.WorkerPool
	Logger  ports.Logger
	Status  ports.StatusReporter
	Busy    ports.BusyIndicator
	Events  ports.EventPublisher
	Tracer  ports.Tracer
	Metrics ports.MetricsCollector
}

// Controller executes the pipelines of a batch of pages. Pages run one after
// another; the branches of a page run concurrently on the worker pool.
type Controller struct {
	opts ControllerOptions
}

// NewController creates a controller.
func NewController(opts ControllerOptions) *Controller {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NopTracer()
	}
	return &Controller{opts: opts}
}

// Process runs every page in order. A failing page never stops the batch;
// cancelling ctx stops it and marks the remaining pages cancelled. The
// returned error is ctx.Err() when the run was cancelled.
func (c *Controller) Process(ctx context.Context, pages []Page, execLog ExecutionLogger) (*BatchResult, error) {
	if c.opts.Pool == nil {
		return nil, divaerrors.NewExecutionError(0, "", fmt.Errorf("worker pool is nil"))
	}
	if execLog == nil {
		execLog = nopExecLog{}
	}

	batch := &BatchResult{RunID: uuid.NewString()}
	if ports.GetCorrelationID(ctx) == "" {
		ctx = ports.WithCorrelationID(ctx, batch.RunID)
	}
	start := time.Now()
	c.opts.Logger.Info(ctx, "processing pages", "pages", len(pages), "run_id", batch.RunID)

	for i, page := range pages {
		if ctx.Err() != nil {
			batch.Pages = append(batch.Pages, &PageResult{PageID: page.ID(), Outcome: OutcomeCancelled, Err: ctx.Err()})
			continue
		}
		result := c.processPage(ctx, i, len(pages), page, execLog)
		batch.Pages = append(batch.Pages, result)
	}

	batch.Duration = time.Since(start)
	batch.settle()
	c.status("Processing", fmt.Sprintf("%d of %d pages processed", batch.Count(OutcomeSucceeded), len(pages)), 1)
	c.opts.Logger.Info(ctx, "processing finished",
		"outcome", batch.Outcome, "succeeded", batch.Count(OutcomeSucceeded),
		"failed", batch.Count(OutcomeFailed), "cancelled", batch.Count(OutcomeCancelled),
		"duration", batch.Duration)

	if batch.Outcome == OutcomeCancelled {
		return batch, context.Canceled
	}
	return batch, nil
}

func (c *Controller) processPage(ctx context.Context, index, total int, page Page, execLog ExecutionLogger) *PageResult {
	pageID := page.ID()
	log := c.opts.Logger.With(ports.FieldPageID, pageID)
	result := &PageResult{PageID: pageID}
	start := time.Now()

	if !page.TryLock() {
		result.Outcome = OutcomeFailed
		result.Err = divaerrors.NewExecutionError(pageID, "", divaerrors.ErrPageBusy)
		log.Warn(ctx, "page is already being processed", "page", page.Name())
		return result
	}
	defer page.Unlock()

	if c.opts.Busy != nil {
		release := c.opts.Busy.Engage()
		defer release()
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.SetGauge(ctx, "diva_active_pages", 1, nil)
		defer c.opts.Metrics.SetGauge(ctx, "diva_active_pages", 0, nil)
	}

	ctx, span := c.opts.Tracer.StartSpan(ctx, "controller.page", ports.FieldPageID, pageID, "page", page.Name())
	defer span.End()

	c.publish(ctx, log, ports.EventProcessingStarted, ports.FieldPageID, pageID, ports.FieldObject, page.Name(), ports.FieldKind, "page")
	title := fmt.Sprintf("Processing page %d of %d", index+1, total)
	c.status(title, page.Name(), float64(index)/float64(total))

	defer func() {
		result.Duration = time.Since(start)
		if result.Outcome == OutcomeFailed {
			span.SetStatus(ports.SpanStatusError, fmt.Sprint(result.Err))
		} else {
			span.SetStatus(ports.SpanStatusOK, "")
		}
		span.SetAttribute("outcome", string(result.Outcome))
		if c.opts.Metrics != nil {
			c.opts.Metrics.IncCounter(ctx, "diva_page_runs_total", map[string]string{"outcome": string(result.Outcome)})
			c.opts.Metrics.ObserveHistogram(ctx, "diva_page_duration_seconds", result.Duration.Seconds(), nil)
		}
		execLog.PageFinished(result)
		c.publish(ctx, log, ports.EventProcessingFinished, ports.FieldPageID, pageID, ports.FieldObject, page.Name(), ports.FieldKind, "page", ports.FieldOutcome, string(result.Outcome))
	}()

	p, err := page.OpenPipeline(ctx)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = divaerrors.NewExecutionError(pageID, "", err)
		log.Error(ctx, "opening page pipeline failed", "page", page.Name(), "error", err)
		return result
	}
	defer p.Close()
	result.Pipeline = p.Name()
	execLog.PageStarted(pageID, p.Name())

	graph, err := BuildDAG(p)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = divaerrors.NewExecutionError(pageID, "", err)
		log.Error(ctx, "building execution graph failed", "pipeline", p.Name(), "error", err)
		return result
	}

	pageResult, err := Execute(&ExecutionContext{
		Context:  ctx,
		PageID:   pageID,
		Pipeline: p.Name(),
		Pool:     c.opts.Pool,
		Logger:   log,
		Events:   c.opts.Events,
		Tracer:   c.opts.Tracer,
		Metrics:  c.opts.Metrics,
		ExecLog:  execLog,
		Progress: func(done, all int) {
			fraction := float64(index) / float64(total)
			if all > 0 {
				fraction += float64(done) / float64(all) / float64(total)
			}
			c.status(title, fmt.Sprintf("%s: %d of %d processors", page.Name(), done, all), fraction)
		},
	}, graph)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		return result
	}
	*result = *pageResult

	switch result.Outcome {
	case OutcomeFailed:
		log.Error(ctx, "page processing failed", "page", page.Name(), "failed", result.Count(OutcomeFailed), "blocked", result.Count(OutcomeBlocked), "error", result.Err)
	case OutcomeCancelled:
		log.Info(ctx, "page processing cancelled", "page", page.Name())
	default:
		log.Info(ctx, "page processed", "page", page.Name(), "ran", result.Count(OutcomeSucceeded), "skipped", result.Count(OutcomeSkipped))
	}
	return result
}

func (c *Controller) status(title, message string, progress float64) {
	if c.opts.Status != nil {
		c.opts.Status.Status(title, message, progress)
	}
}

func (c *Controller) publish(ctx context.Context, log ports.Logger, eventType string, kv ...interface{}) {
	if c.opts.Events == nil {
		return
	}
	if err := c.opts.Events.Publish(ctx, ports.NewEvent(eventType, kv...)); err != nil {
		log.Warn(ctx, "publishing event failed", "event", eventType, "error", err)
	}
}
