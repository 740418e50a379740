package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/ports"
)

// Metrics implements ports.MetricsCollector. Instruments are created on first
// use and cached by name.
type Metrics struct {
	meter metric.Meter
	log   ports.Logger

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
}

// NewMetrics returns a collector on mp, or on the global provider when mp is nil.
func NewMetrics(mp metric.MeterProvider, log ports.Logger) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Metrics{
		meter:      mp.Meter(InstrumentationName),
		log:        log,
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (m *Metrics) IncCounter(ctx context.Context, name string, labels map[string]string) {
	m.mu.Lock()
	c, ok := m.counters[name]
	if !ok {
		var err error
		if c, err = m.meter.Int64Counter(name); err != nil {
			m.mu.Unlock()
			m.log.Warn(ctx, "creating counter failed", "metric", name, "error", err)
			return
		}
		m.counters[name] = c
	}
	m.mu.Unlock()
	c.Add(ctx, 1, metric.WithAttributes(labelAttributes(labels)...))
}

func (m *Metrics) SetGauge(ctx context.Context, name string, value float64, labels map[string]string) {
	m.mu.Lock()
	g, ok := m.gauges[name]
	if !ok {
		var err error
		if g, err = m.meter.Float64Gauge(name); err != nil {
			m.mu.Unlock()
			m.log.Warn(ctx, "creating gauge failed", "metric", name, "error", err)
			return
		}
		m.gauges[name] = g
	}
	m.mu.Unlock()
	g.Record(ctx, value, metric.WithAttributes(labelAttributes(labels)...))
}

func (m *Metrics) ObserveHistogram(ctx context.Context, name string, value float64, labels map[string]string) {
	m.mu.Lock()
	h, ok := m.histograms[name]
	if !ok {
		var err error
		if h, err = m.meter.Float64Histogram(name, metric.WithUnit("s")); err != nil {
			m.mu.Unlock()
			m.log.Warn(ctx, "creating histogram failed", "metric", name, "error", err)
			return
		}
		m.histograms[name] = h
	}
	m.mu.Unlock()
	h.Record(ctx, value, metric.WithAttributes(labelAttributes(labels)...))
}
