package observability

import "context"

// Metrics creates metric instruments. Implementations return the same
// instrument for repeated calls with the same name.
type Metrics interface {
	Counter(name, description, unit string) Counter
	Histogram(name, description, unit string) Histogram
	UpDownCounter(name, description, unit string) UpDownCounter
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Add(ctx context.Context, value int64, fields ...Field)
	Increment(ctx context.Context, fields ...Field)
}

// Histogram records a distribution of values.
type Histogram interface {
	Record(ctx context.Context, value float64, fields ...Field)
}

// UpDownCounter is a metric that can increase and decrease.
type UpDownCounter interface {
	Add(ctx context.Context, value int64, fields ...Field)
}
