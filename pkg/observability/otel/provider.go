// Package otel adapts OpenTelemetry tracer and meter providers to the
// observability facade. Exporter setup is left to the host process, which
// passes in already configured providers.
package otel

import (
	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"github.com/JailtonJunior94/actionflow/pkg/observability/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const defaultInstrumentationName = "github.com/JailtonJunior94/actionflow"

// Config holds the providers used to build the facade.
type Config struct {
	// InstrumentationName names the tracer and meter. Defaults to the module path.
	InstrumentationName string
	TracerProvider      trace.TracerProvider
	MeterProvider       metric.MeterProvider
	// Logger is used as-is. Defaults to a no-op logger.
	Logger observability.Logger
}

// Provider implements observability.Observability on top of OpenTelemetry.
type Provider struct {
	tracer  *otelTracer
	metrics *otelMetrics
	logger  observability.Logger
}

// NewProvider builds a provider. Providers left nil fall back to the
// OpenTelemetry no-op implementations.
func NewProvider(cfg Config) *Provider {
	name := cfg.InstrumentationName
	if name == "" {
		name = defaultInstrumentationName
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}

	mp := cfg.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noop.NewProvider().Logger()
	}

	return &Provider{
		tracer:  newOtelTracer(tp.Tracer(name)),
		metrics: newOtelMetrics(mp.Meter(name)),
		logger:  logger,
	}
}

func (p *Provider) Tracer() observability.Tracer {
	return p.tracer
}

func (p *Provider) Logger() observability.Logger {
	return p.logger
}

func (p *Provider) Metrics() observability.Metrics {
	return p.metrics
}
