// Package guard rate-limits keyed calls. A Debouncer collapses bursts into a
// single run after a quiet period; a Throttler allows at most one run per
// interval, optionally deferring the latest rejected call to the boundary.
//
// Callers that are collapsed or deferred wait for the run that absorbed them
// and receive its result.
package guard

import (
	"context"
	"errors"
)

var (
	// ErrThrottled is returned when a call lands inside the throttle interval
	// and trailing execution is disabled.
	ErrThrottled = errors.New("guard: call throttled")

	// ErrStopped is returned to waiting callers when the guard is stopped, and
	// to new callers afterwards.
	ErrStopped = errors.New("guard: stopped")
)

// Func is the guarded unit of work.
type Func[T, V any] func(ctx context.Context, value T) (V, error)

type outcome[V any] struct {
	value V
	err   error
}

// pendingRun is the latest call absorbed by a scheduled run.
type pendingRun[T, V any] struct {
	ctx     context.Context
	value   T
	fn      Func[T, V]
	waiters []chan outcome[V]
}

func (p *pendingRun[T, V]) absorb(ctx context.Context, value T, fn Func[T, V]) chan outcome[V] {
	ch := make(chan outcome[V], 1)
	p.ctx, p.value, p.fn = ctx, value, fn
	p.waiters = append(p.waiters, ch)
	return ch
}

// run executes the latest call. Its context keeps the values of the last
// caller but not its cancellation, since earlier waiters still expect a run.
func (p *pendingRun[T, V]) run() {
	value, err := p.fn(context.WithoutCancel(p.ctx), p.value)
	p.deliver(outcome[V]{value: value, err: err})
}

func (p *pendingRun[T, V]) deliver(o outcome[V]) {
	for _, ch := range p.waiters {
		ch <- o
	}
	p.waiters = nil
}

func wait[V any](ctx context.Context, ch chan outcome[V]) (V, error) {
	select {
	case o := <-ch:
		return o.value, o.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
