// Package actionsprom exports dispatch metrics to Prometheus. The Collector is
// fed by lifecycle events, so it works with any registry regardless of the
// observability provider the registry was built with.
package actionsprom

import (
	"context"
	"sync"

	"github.com/JailtonJunior94/actionflow/pkg/actions"
	"github.com/prometheus/client_golang/prometheus"
)

// Source is implemented by *actions.Registry.
type Source interface {
	On(t actions.EventType, fn func(ctx context.Context, l actions.Lifecycle)) (func(), error)
}

// Collector is a prometheus.Collector. Register it once and Attach it to any
// number of registries; series are labelled by registry name.
type Collector struct {
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	failures   *prometheus.CounterVec
	registered *prometheus.GaugeVec

	mu  sync.Mutex
	off []func()
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates the metric vectors under namespace, "actionflow" when empty.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "actionflow"
	}

	return &Collector{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Completed dispatches by outcome.",
		}, []string{"registry", "action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"registry", "action"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handlers_failed_total",
			Help:      "Handler failures recorded in dispatch results.",
		}, []string{"registry", "action"}),
		registered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handlers_registered",
			Help:      "Handlers currently registered.",
		}, []string{"registry", "action"}),
	}
}

// Attach subscribes the collector to src.
func (c *Collector) Attach(src Source) error {
	subscriptions := map[actions.EventType]func(context.Context, actions.Lifecycle){
		actions.EventActionComplete:    c.observeDispatch,
		actions.EventActionAbort:       c.observeDispatch,
		actions.EventActionError:       c.observeDispatch,
		actions.EventHandlerRegister:   c.observeHandlers,
		actions.EventHandlerUnregister: c.observeHandlers,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for t, fn := range subscriptions {
		off, err := src.On(t, fn)
		if err != nil {
			return err
		}
		c.off = append(c.off, off)
	}
	return nil
}

// Detach unsubscribes from every attached registry.
func (c *Collector) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, off := range c.off {
		off()
	}
	c.off = nil
}

func (c *Collector) observeDispatch(_ context.Context, l actions.Lifecycle) {
	outcome := "failed"
	switch {
	case l.Success:
		outcome = "success"
	case l.Aborted:
		outcome = "aborted"
	}

	c.dispatches.WithLabelValues(l.Registry, l.Action, outcome).Inc()
	c.duration.WithLabelValues(l.Registry, l.Action).Observe(l.Duration.Seconds())
	if l.HandlersFailed > 0 {
		c.failures.WithLabelValues(l.Registry, l.Action).Add(float64(l.HandlersFailed))
	}
}

func (c *Collector) observeHandlers(_ context.Context, l actions.Lifecycle) {
	c.registered.WithLabelValues(l.Registry, l.Action).Set(float64(l.Handlers))
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.dispatches.Describe(ch)
	c.duration.Describe(ch)
	c.failures.Describe(ch)
	c.registered.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.dispatches.Collect(ch)
	c.duration.Collect(ch)
	c.failures.Collect(ch)
	c.registered.Collect(ch)
}
