package otel

import (
	"context"
	"sync"

	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"go.opentelemetry.io/otel/metric"
)

// otelMetrics caches instruments by name so repeated lookups on the hot
// dispatch path do not hit the meter.
type otelMetrics struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]observability.Counter
	histograms map[string]observability.Histogram
	upDowns    map[string]observability.UpDownCounter
}

func newOtelMetrics(meter metric.Meter) *otelMetrics {
	return &otelMetrics{
		meter:      meter,
		counters:   make(map[string]observability.Counter),
		histograms: make(map[string]observability.Histogram),
		upDowns:    make(map[string]observability.UpDownCounter),
	}
}

func (m *otelMetrics) Counter(name, description, unit string) observability.Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[name]; ok {
		return c
	}

	var c observability.Counter = noopInstrument{}
	counter, err := m.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err == nil {
		c = &otelCounter{counter: counter}
	}
	m.counters[name] = c
	return c
}

func (m *otelMetrics) Histogram(name, description, unit string) observability.Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.histograms[name]; ok {
		return h
	}

	var h observability.Histogram = noopInstrument{}
	histogram, err := m.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err == nil {
		h = &otelHistogram{histogram: histogram}
	}
	m.histograms[name] = h
	return h
}

func (m *otelMetrics) UpDownCounter(name, description, unit string) observability.UpDownCounter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.upDowns[name]; ok {
		return u
	}

	var u observability.UpDownCounter = noopInstrument{}
	upDown, err := m.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err == nil {
		u = &otelUpDownCounter{counter: upDown}
	}
	m.upDowns[name] = u
	return u
}

type otelCounter struct {
	counter metric.Int64Counter
}

func (c *otelCounter) Add(ctx context.Context, value int64, fields ...observability.Field) {
	if len(fields) == 0 {
		c.counter.Add(ctx, value)
		return
	}
	c.counter.Add(ctx, value, metric.WithAttributes(attributesOf(fields)...))
}

func (c *otelCounter) Increment(ctx context.Context, fields ...observability.Field) {
	c.Add(ctx, 1, fields...)
}

type otelHistogram struct {
	histogram metric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, value float64, fields ...observability.Field) {
	if len(fields) == 0 {
		h.histogram.Record(ctx, value)
		return
	}
	h.histogram.Record(ctx, value, metric.WithAttributes(attributesOf(fields)...))
}

type otelUpDownCounter struct {
	counter metric.Int64UpDownCounter
}

func (u *otelUpDownCounter) Add(ctx context.Context, value int64, fields ...observability.Field) {
	if len(fields) == 0 {
		u.counter.Add(ctx, value)
		return
	}
	u.counter.Add(ctx, value, metric.WithAttributes(attributesOf(fields)...))
}

// noopInstrument is returned when the meter rejects an instrument definition.
type noopInstrument struct{}

func (noopInstrument) Add(context.Context, int64, ...observability.Field) {}

func (noopInstrument) Increment(context.Context, ...observability.Field) {}

func (noopInstrument) Record(context.Context, float64, ...observability.Field) {}
