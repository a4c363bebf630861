// Package bridge feeds broker deliveries into a registry: each delivery is
// decoded into a payload, dispatched to the action routed from its topic and
// then acknowledged or rejected depending on the dispatch outcome.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/actions"
	"github.com/JailtonJunior94/actionflow/pkg/messaging"
	"github.com/JailtonJunior94/actionflow/pkg/observability"

	"github.com/cenkalti/backoff/v4"
)

// Outcomes recorded on the actions.bridge.messages counter.
const (
	OutcomeDispatched  = "dispatched"
	OutcomeFailed      = "failed"
	OutcomeRejected    = "rejected"
	OutcomeUndecoded   = "undecodable"
	OutcomeUnroutable  = "unroutable"
	OutcomeInterrupted = "interrupted"
)

// ErrDrainTimeout is the cause of dispatches cancelled because they were
// still running when the drain timeout expired.
var ErrDrainTimeout = errors.New("bridge: drain timeout exceeded")

// Dispatcher is the part of *actions.Registry used by the bridge.
type Dispatcher[P, R any] interface {
	Name() string
	DispatchWithResult(ctx context.Context, action string, payload P, opts ...actions.DispatchOption) (*actions.ExecutionResult[R], error)
}

// Bridge consumes deliveries and dispatches them. Run it once.
type Bridge[P, R any] struct {
	dispatcher Dispatcher[P, R]
	consumer   messaging.Consumer
	logger     observability.Logger
	messages   observability.Counter
	decode     func(*messaging.Delivery) (P, error)
	settings   *settings
}

// New creates a bridge from consumer into dispatcher.
func New[P, R any](dispatcher Dispatcher[P, R], consumer messaging.Consumer, obs observability.Observability, opts ...Option) (*Bridge[P, R], error) {
	s := newSettings(opts)
	if err := s.validate(); err != nil {
		return nil, err
	}

	decode := decodeJSON[P]
	if s.decoder != nil {
		fn, ok := s.decoder.(func(*messaging.Delivery) (P, error))
		if !ok {
			return nil, fmt.Errorf("%w: decoder does not produce the registry payload type", actions.ErrInvalidOption)
		}
		decode = fn
	}

	return &Bridge[P, R]{
		dispatcher: dispatcher,
		consumer:   consumer,
		logger: obs.Logger().With(
			observability.String("component", "bridge"),
			observability.String("registry", dispatcher.Name())),
		messages: obs.Metrics().Counter("actions.bridge.messages", "Deliveries handled by the bridge", "1"),
		decode:   decode,
		settings: s,
	}, nil
}

func decodeJSON[P any](d *messaging.Delivery) (P, error) {
	var payload P
	err := json.Unmarshal(d.Body, &payload)
	return payload, err
}

// Run fetches deliveries until ctx is done or the consumer closes, dispatching
// them on the configured number of workers. In-flight deliveries are settled
// before Run returns; dispatches still running one drain timeout after ctx is
// done are cancelled and requeued. Fetch errors are retried with exponential
// backoff.
func (b *Bridge[P, R]) Run(ctx context.Context) error {
	deliveries := make(chan *messaging.Delivery, b.settings.workers*2)

	drainCtx, cancelDrain := b.drainContext(ctx)
	defer cancelDrain(nil)

	var wg sync.WaitGroup
	for i := range b.settings.workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			b.worker(drainCtx, id, deliveries)
		}(i)
	}

	b.logger.Info(ctx, "bridge started", observability.Int("workers", b.settings.workers))
	err := b.fetch(ctx, deliveries)
	close(deliveries)
	wg.Wait()
	b.logger.Info(ctx, "bridge stopped")

	if errors.Is(err, messaging.ErrConsumerClosed) {
		return nil
	}
	return err
}

// drainContext outlives ctx by at most the drain timeout, so dispatches
// already handed to workers can finish after shutdown starts.
func (b *Bridge[P, R]) drainContext(ctx context.Context) (context.Context, context.CancelCauseFunc) {
	drainCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(b.settings.drainTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel(ErrDrainTimeout)
		case <-drainCtx.Done():
		}
	})

	return drainCtx, func(cause error) {
		stop()
		cancel(cause)
	}
}

func (b *Bridge[P, R]) fetch(ctx context.Context, out chan<- *messaging.Delivery) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 100 * time.Millisecond
	retry.MaxInterval = 5 * time.Second
	retry.MaxElapsedTime = 0

	for {
		d, err := b.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, messaging.ErrConsumerClosed) {
				return err
			}

			wait := retry.NextBackOff()
			b.logger.Warn(ctx, "fetch failed",
				observability.Error(err),
				observability.String("retry_in", wait.String()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		select {
		case out <- d:
		case <-ctx.Done():
			// Not handed to a worker; the broker redelivers it.
			_ = d.Nack(context.WithoutCancel(ctx), true)
			return ctx.Err()
		}
	}
}

func (b *Bridge[P, R]) worker(ctx context.Context, id int, deliveries <-chan *messaging.Delivery) {
	b.logger.Debug(ctx, "worker started", observability.Int("worker_id", id))
	defer b.logger.Debug(ctx, "worker stopped", observability.Int("worker_id", id))

	// Deliveries already fetched are drained even after the drain timeout so
	// every one of them is settled.
	for d := range deliveries {
		b.handle(ctx, d)
	}
}

func (b *Bridge[P, R]) handle(ctx context.Context, d *messaging.Delivery) {
	action := b.route(d)
	outcome := b.process(ctx, action, d)
	b.messages.Increment(context.WithoutCancel(ctx),
		observability.String("topic", d.Topic),
		observability.String("action", action),
		observability.String("outcome", outcome))
}

func (b *Bridge[P, R]) route(d *messaging.Delivery) string {
	if action, ok := b.settings.routes[d.Topic]; ok {
		return action
	}
	return d.Headers[messaging.HeaderAction]
}

// process dispatches d on ctx and settles it on a context that ignores ctx's
// cancellation, so a delivery is settled even after the drain timeout.
func (b *Bridge[P, R]) process(ctx context.Context, action string, d *messaging.Delivery) (outcome string) {
	dispatchCtx := ctx
	ctx = context.WithoutCancel(ctx)
	fields := []observability.Field{
		observability.String("topic", d.Topic),
		observability.String("key", d.Key),
		observability.String("action", action),
	}

	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error(ctx, "delivery panicked", append(fields, observability.Any("panic", rec))...)
			b.settle(ctx, d, false, fields)
			outcome = OutcomeFailed
		}
	}()

	if action == "" {
		b.logger.Warn(ctx, "delivery has no route", fields...)
		b.settle(ctx, d, false, fields)
		return OutcomeUnroutable
	}

	payload, err := b.decode(d)
	if err != nil {
		b.logger.Warn(ctx, "delivery could not be decoded", append(fields, observability.Error(err))...)
		b.settle(ctx, d, false, fields)
		return OutcomeUndecoded
	}

	res, err := b.dispatcher.DispatchWithResult(dispatchCtx, action, payload, b.settings.dispatchOpts...)
	if err != nil {
		b.logger.Error(ctx, "dispatch rejected delivery", append(fields, observability.Error(err))...)
		b.settle(ctx, d, b.settings.requeue, fields)
		return OutcomeRejected
	}

	fields = append(fields, observability.String("execution_id", res.ExecutionID))
	if !res.Success && dispatchCtx.Err() != nil {
		b.logger.Warn(ctx, "dispatch interrupted by shutdown",
			append(fields, observability.Error(context.Cause(dispatchCtx)))...)
		b.settle(ctx, d, true, fields)
		return OutcomeInterrupted
	}
	if !res.Success && !res.Aborted {
		b.logger.Error(ctx, "dispatch failed", append(fields, observability.Error(res.Err()))...)
		b.settle(ctx, d, b.settings.requeue, fields)
		return OutcomeFailed
	}

	if err := d.Ack(ctx); err != nil {
		b.logger.Error(ctx, "ack failed", append(fields, observability.Error(err))...)
	}
	return OutcomeDispatched
}

func (b *Bridge[P, R]) settle(ctx context.Context, d *messaging.Delivery, requeue bool, fields []observability.Field) {
	if err := d.Nack(ctx, requeue); err != nil {
		b.logger.Error(ctx, "nack failed", append(fields, observability.Error(err))...)
	}
}
