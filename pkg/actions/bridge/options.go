package bridge

import (
	"fmt"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/actions"
	"github.com/JailtonJunior94/actionflow/pkg/messaging"
)

const (
	defaultWorkers      = 1
	defaultDrainTimeout = 30 * time.Second
)

type settings struct {
	routes       map[string]string
	workers      int
	decoder      any
	requeue      bool
	drainTimeout time.Duration
	dispatchOpts []actions.DispatchOption
}

// Option configures a Bridge.
type Option func(*settings)

// WithRoute dispatches deliveries of topic to action. Deliveries of unrouted
// topics fall back to the messaging.HeaderAction header.
func WithRoute(topic, action string) Option {
	return func(s *settings) {
		s.routes[topic] = action
	}
}

// WithWorkers sets how many deliveries are dispatched concurrently.
func WithWorkers(n int) Option {
	return func(s *settings) {
		s.workers = n
	}
}

// WithDecoder replaces the JSON body decoder. P must be the payload type of
// the bridged registry.
func WithDecoder[P any](fn func(*messaging.Delivery) (P, error)) Option {
	return func(s *settings) {
		s.decoder = fn
	}
}

// WithRequeue asks the broker to redeliver messages whose dispatch failed.
// By default they are rejected without requeue.
func WithRequeue() Option {
	return func(s *settings) {
		s.requeue = true
	}
}

// WithDrainTimeout bounds how long in-flight dispatches may keep running after
// Run's context is done. Dispatches still running then are cancelled and
// their deliveries requeued. Default: 30s.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.drainTimeout = d
	}
}

// WithDispatchOptions applies opts to every dispatch.
func WithDispatchOptions(opts ...actions.DispatchOption) Option {
	return func(s *settings) {
		s.dispatchOpts = append(s.dispatchOpts, opts...)
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{
		routes:       make(map[string]string),
		workers:      defaultWorkers,
		drainTimeout: defaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *settings) validate() error {
	if s.workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", actions.ErrInvalidOption, s.workers)
	}
	if s.drainTimeout <= 0 {
		return fmt.Errorf("%w: drain timeout must be positive, got %s", actions.ErrInvalidOption, s.drainTimeout)
	}
	for topic, action := range s.routes {
		if topic == "" || action == "" {
			return fmt.Errorf("%w: route %q -> %q", actions.ErrInvalidOption, topic, action)
		}
	}
	return nil
}
