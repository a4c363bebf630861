// Package fake provides an observability provider that captures spans, log
// entries and metric values so tests can assert on them.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/observability"
)

// Provider captures all observability operations for test assertions.
type Provider struct {
	tracer  *FakeTracer
	logger  *FakeLogger
	metrics *FakeMetrics
}

// NewProvider creates a new fake observability provider.
func NewProvider() *Provider {
	return &Provider{
		tracer:  NewFakeTracer(),
		logger:  NewFakeLogger(),
		metrics: NewFakeMetrics(),
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

// FakeTracer captures started spans.
type FakeTracer struct {
	mu    sync.RWMutex
	spans []*FakeSpan
}

// NewFakeTracer creates a new fake tracer.
func NewFakeTracer() *FakeTracer {
	return &FakeTracer{spans: make([]*FakeSpan, 0)}
}

// Start creates a fake span and captures it.
func (t *FakeTracer) Start(ctx context.Context, spanName string, opts ...observability.SpanOption) (context.Context, observability.Span) {
	cfg := observability.NewSpanConfig(opts)
	span := &FakeSpan{
		Name:       spanName,
		Kind:       cfg.Kind,
		StartTime:  time.Now(),
		Attributes: cfg.Attributes,
	}

	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()

	return ctx, span
}

// GetSpans returns all captured spans.
func (t *FakeTracer) GetSpans() []*FakeSpan {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]*FakeSpan, len(t.spans))
	copy(result, t.spans)
	return result
}

// FakeSpan captures span operations.
type FakeSpan struct {
	mu          sync.RWMutex
	Name        string
	Kind        observability.SpanKind
	StartTime   time.Time
	EndTime     *time.Time
	Attributes  []observability.Field
	Events      []FakeEvent
	Status      observability.StatusCode
	StatusDesc  string
	RecordedErr error
}

func (s *FakeSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
}

func (s *FakeSpan) SetAttributes(fields ...observability.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attributes = append(s.Attributes, fields...)
}

func (s *FakeSpan) SetStatus(code observability.StatusCode, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = code
	s.StatusDesc = description
}

func (s *FakeSpan) RecordError(err error, fields ...observability.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RecordedErr = err
	s.Attributes = append(s.Attributes, fields...)
}

func (s *FakeSpan) AddEvent(name string, fields ...observability.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, FakeEvent{Name: name, Timestamp: time.Now(), Fields: fields})
}

// Attribute returns the value of the first attribute with the given key.
func (s *FakeSpan) Attribute(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.Attributes {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Ended reports whether End was called.
func (s *FakeSpan) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.EndTime != nil
}

// FakeEvent represents a recorded span event.
type FakeEvent struct {
	Name      string
	Timestamp time.Time
	Fields    []observability.Field
}

// FakeLogger captures log entries. Children created with With share the
// parent's entry buffer.
type FakeLogger struct {
	mu      *sync.RWMutex
	entries *[]LogEntry
	fields  []observability.Field
}

// NewFakeLogger creates a new fake logger.
func NewFakeLogger() *FakeLogger {
	entries := make([]LogEntry, 0)
	return &FakeLogger{
		mu:      &sync.RWMutex{},
		entries: &entries,
	}
}

func (l *FakeLogger) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelDebug, msg, fields)
}

func (l *FakeLogger) Info(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelInfo, msg, fields)
}

func (l *FakeLogger) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelWarn, msg, fields)
}

func (l *FakeLogger) Error(ctx context.Context, msg string, fields ...observability.Field) {
	l.append(observability.LogLevelError, msg, fields)
}

func (l *FakeLogger) append(level observability.LogLevel, msg string, fields []observability.Field) {
	all := make([]observability.Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, LogEntry{
		Level:     level,
		Message:   msg,
		Fields:    all,
		Timestamp: time.Now(),
	})
}

// With creates a child logger with additional fields.
func (l *FakeLogger) With(fields ...observability.Field) observability.Logger {
	child := make([]observability.Field, 0, len(l.fields)+len(fields))
	child = append(child, l.fields...)
	child = append(child, fields...)
	return &FakeLogger{mu: l.mu, entries: l.entries, fields: child}
}

// GetEntries returns all captured log entries.
func (l *FakeLogger) GetEntries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]LogEntry, len(*l.entries))
	copy(result, *l.entries)
	return result
}

// EntriesWithMessage returns the captured entries whose message equals msg.
func (l *FakeLogger) EntriesWithMessage(msg string) []LogEntry {
	var result []LogEntry
	for _, e := range l.GetEntries() {
		if e.Message == msg {
			result = append(result, e)
		}
	}
	return result
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level     observability.LogLevel
	Message   string
	Fields    []observability.Field
	Timestamp time.Time
}

// Field returns the value of the first field with the given key.
func (e LogEntry) Field(key string) (any, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// FakeMetrics captures metric values by instrument name.
type FakeMetrics struct {
	mu          sync.RWMutex
	instruments map[string]*FakeInstrument
}

// NewFakeMetrics creates a new fake metrics recorder.
func NewFakeMetrics() *FakeMetrics {
	return &FakeMetrics{instruments: make(map[string]*FakeInstrument)}
}

func (m *FakeMetrics) Counter(name, description, unit string) observability.Counter {
	return m.instrument(name, description, unit)
}

func (m *FakeMetrics) Histogram(name, description, unit string) observability.Histogram {
	return m.instrument(name, description, unit)
}

func (m *FakeMetrics) UpDownCounter(name, description, unit string) observability.UpDownCounter {
	return m.instrument(name, description, unit)
}

func (m *FakeMetrics) instrument(name, description, unit string) *FakeInstrument {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i, exists := m.instruments[name]; exists {
		return i
	}
	i := &FakeInstrument{Name: name, Description: description, Unit: unit}
	m.instruments[name] = i
	return i
}

// Get returns the instrument with the given name, or nil.
func (m *FakeMetrics) Get(name string) *FakeInstrument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instruments[name]
}

// FakeInstrument captures values for counters, histograms and up-down counters.
type FakeInstrument struct {
	mu          sync.RWMutex
	Name        string
	Description string
	Unit        string
	values      []Value
}

// Value is a captured measurement.
type Value struct {
	Value     float64
	Fields    []observability.Field
	Timestamp time.Time
}

func (i *FakeInstrument) Add(ctx context.Context, value int64, fields ...observability.Field) {
	i.record(float64(value), fields)
}

func (i *FakeInstrument) Increment(ctx context.Context, fields ...observability.Field) {
	i.record(1, fields)
}

func (i *FakeInstrument) Record(ctx context.Context, value float64, fields ...observability.Field) {
	i.record(value, fields)
}

func (i *FakeInstrument) record(value float64, fields []observability.Field) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.values = append(i.values, Value{Value: value, Fields: fields, Timestamp: time.Now()})
}

// GetValues returns all captured values.
func (i *FakeInstrument) GetValues() []Value {
	i.mu.RLock()
	defer i.mu.RUnlock()
	result := make([]Value, len(i.values))
	copy(result, i.values)
	return result
}

// Sum returns the sum of all captured values.
func (i *FakeInstrument) Sum() float64 {
	var total float64
	for _, v := range i.GetValues() {
		total += v.Value
	}
	return total
}
