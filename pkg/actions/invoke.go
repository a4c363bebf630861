package actions

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"github.com/cenkalti/backoff/v4"
)

// invoke runs one handler, retrying failed attempts, and records its outcome.
// started, when not nil, is closed once the handler is marked running.
func (r *Registry[P, R]) invoke(ctx context.Context, run *pipeline[P, R], inv *invocation[P, R], retries int, started chan<- struct{}) error {
	reg := inv.reg
	ctl := &Controller[P, R]{run: run, inv: inv}

	start := time.Now()
	run.update(inv, func(o *HandlerOutcome[R]) {
		o.Status = StatusRunning
		o.Executed = true
	})
	if started != nil {
		close(started)
	}

	var (
		attempts int
		lastErr  error
	)
	operation := func() error {
		attempts++
		err := r.attempt(ctx, run.currentPayload(), reg, ctl)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || ctl.stopRequested() {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(r.backOff(), uint64(retries)), ctx)
	err := backoff.Retry(operation, policy)
	if err != nil && lastErr != nil {
		err = lastErr
	}
	if err != nil && errors.Is(err, ErrAborted) && ctl.abortRequested() {
		// The handler cancelled its own context through Abort.
		err = nil
	}
	duration := time.Since(start)

	if err != nil {
		herr := &HandlerError{Action: run.action, HandlerID: reg.info.ID, Attempts: attempts, Err: err}

		run.mu.Lock()
		if !run.finalized && !inv.settled {
			o := &run.outcomes[inv.index]
			o.Status = StatusFailed
			o.Err = herr
			o.Attempts = attempts
			o.Duration = duration
			if run.mode != ModeRace {
				run.failLocked(reg.info.ID, reg.info.Blocking, herr)
			}
		}
		run.mu.Unlock()

		if reg.info.Once {
			reg.claimed.Store(false)
		}

		r.metrics.handlerFailures.Increment(ctx,
			observability.String("action", run.action),
			observability.String("handler_id", reg.info.ID))
		if reg.info.Blocking {
			r.logger.Warn(ctx, "blocking handler failed",
				observability.String("action", run.action),
				observability.String("handler_id", reg.info.ID),
				observability.Int("attempts", attempts),
				observability.Error(err))
		}
		return herr
	}

	run.mu.Lock()
	if !run.finalized && !inv.settled {
		o := &run.outcomes[inv.index]
		o.Status = StatusCompleted
		o.Attempts = attempts
		o.Duration = duration
		o.Result = inv.lastResult
		o.HasResult = inv.hasResult
	}
	abortCalled := inv.abortCalled
	run.mu.Unlock()

	if reg.info.Once {
		if abortCalled {
			reg.claimed.Store(false)
		} else {
			r.remove(run.action, func(x *registration[P, R]) bool { return x == reg })
		}
	}
	return nil
}

// attempt runs the handler once. The handler runs on its own goroutine so a
// handler or dispatch deadline returns control even if it ignores ctx.
func (r *Registry[P, R]) attempt(ctx context.Context, payload P, reg *registration[P, R], ctl *Controller[P, R]) error {
	attemptCtx := ctx
	if reg.info.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeoutCause(ctx, reg.info.Timeout,
			fmt.Errorf("%w: handler %s exceeded %s", ErrTimeout, reg.info.ID, reg.info.Timeout))
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- &PanicError{Value: rec, Stack: debug.Stack()}
			}
		}()
		done <- reg.fn(attemptCtx, payload, ctl)
	}()

	select {
	case err := <-done:
		if err != nil && attemptCtx.Err() != nil &&
			(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return context.Cause(attemptCtx)
		}
		return err
	case <-attemptCtx.Done():
		return context.Cause(attemptCtx)
	}
}

func (c *Controller[P, R]) abortRequested() bool {
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	return c.inv.abortCalled
}

func (c *Controller[P, R]) stopRequested() bool {
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	return c.inv.abortCalled || c.inv.returned
}

func (r *Registry[P, R]) retriesFor(reg *registration[P, R], s *resolvedDispatch[P, R]) int {
	n := reg.info.Retries
	if s.retriesSet {
		n = s.retries
	}
	return min(n, r.config.MaxRetries)
}

func (r *Registry[P, R]) backOff() backoff.BackOff {
	switch {
	case r.config.ExponentialRetry:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = r.config.RetryDelay
		b.MaxElapsedTime = 0
		return b
	case r.config.RetryDelay > 0:
		return backoff.NewConstantBackOff(r.config.RetryDelay)
	default:
		return &backoff.ZeroBackOff{}
	}
}
