package engine

import (
	"context"

	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/pool"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/telemetry"
)

// ExecutionContext contains runtime state shared across executor workers of
// one page run.
type ExecutionContext struct {
	Context  context.Context
	PageID   int
	Pipeline string
	Pool     *pool.WorkerPool
	Logger   ports.Logger
	Events   ports.EventPublisher
	Tracer   ports.Tracer
	Metrics  ports.MetricsCollector
	ExecLog  ExecutionLogger
	// Progress is called after every processor outcome with the number of
	// settled and total processors.
	Progress func(done, total int)
}

func (c *ExecutionContext) withDefaults() *ExecutionContext {
	out := *c
	if out.Context == nil {
		out.Context = context.Background()
	}
	if out.Logger == nil {
		out.Logger = logger.Nop()
	}
	if out.Tracer == nil {
		out.Tracer = telemetry.NopTracer()
	}
	if out.ExecLog == nil {
		out.ExecLog = nopExecLog{}
	}
	return &out
}

func (c *ExecutionContext) publish(ctx context.Context, eventType string, kv ...interface{}) {
	if c.Events == nil {
		return
	}
	if err := c.Events.Publish(ctx, ports.NewEvent(eventType, kv...)); err != nil {
		c.Logger.Warn(ctx, "publishing event failed", "event", eventType, "error", err)
	}
}

func (c *ExecutionContext) count(ctx context.Context, name string, labels map[string]string) {
	if c.Metrics != nil {
		c.Metrics.IncCounter(ctx, name, labels)
	}
}

func (c *ExecutionContext) observe(ctx context.Context, name string, seconds float64, labels map[string]string) {
	if c.Metrics != nil {
		c.Metrics.ObserveHistogram(ctx, name, seconds, labels)
	}
}
