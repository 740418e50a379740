package ports

import "context"

// MetricsCollector records quantitative observability signals. Standard names:
//   - Counters:
//     diva_page_runs_total{outcome="succeeded|failed|cancelled"}
//     diva_processor_runs_total{service="...", outcome="succeeded|skipped|failed|blocked|cancelled"}
//     diva_preview_dropped_total
//   - Gauges:
//     diva_active_pages
//   - Histograms:
//     diva_page_duration_seconds
//     diva_processor_duration_seconds{service="..."}
type MetricsCollector interface {
	IncCounter(ctx context.Context, name string, labels map[string]string)
	SetGauge(ctx context.Context, name string, value float64, labels map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, labels map[string]string)
}

// Tracer manages tracing spans. Span names follow `<component>.<operation>`
// (e.g. `controller.page`, `executor.processor`).
type Tracer interface {
	StartSpan(ctx context.Context, name string, attributes ...interface{}) (context.Context, Span)
}

// Span represents an active tracing span.
type Span interface {
	SetAttribute(key string, value interface{})
	SetStatus(status SpanStatus, message string)
	End()
}

// SpanStatus provides strongly typed span result semantics.
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)
