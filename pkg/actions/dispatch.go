package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/guard"
	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"github.com/google/uuid"
)

// Dispatch runs the handlers of action and returns the first blocking
// failure. Aborted and throttled dispatches return nil; use
// DispatchWithResult to inspect them.
func (r *Registry[P, R]) Dispatch(ctx context.Context, action string, payload P, opts ...DispatchOption) error {
	res, err := r.DispatchWithResult(ctx, action, payload, opts...)
	if err != nil {
		return err
	}
	return res.Err()
}

// DispatchWithResult runs the handlers of action and returns the full
// execution record. The error is reserved for dispatches that could not
// start: invalid options, unknown action in strict mode, a disposed
// registry. Handler failures are reported in the result.
func (r *Registry[P, R]) DispatchWithResult(ctx context.Context, action string, payload P, opts ...DispatchOption) (*ExecutionResult[R], error) {
	if r.disposed.Load() {
		return nil, ErrDisposed
	}
	if action == "" {
		return nil, ErrActionEmpty
	}

	resolved, err := resolveDispatch[P, R](opts)
	if err != nil {
		return nil, err
	}
	s := &resolved
	if r.config.StrictActions && !r.HasHandlers(action) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	run := func(ctx context.Context, payload P) (*ExecutionResult[R], error) {
		return r.execute(ctx, action, payload, s), nil
	}

	switch {
	case s.debounce > 0:
		res, err := r.debouncer.Do(ctx, r.guardKey(action, payload, s), s.debounce, payload, run)
		return r.guarded(ctx, action, s, res, err)
	case s.throttle > 0:
		res, err := r.throttler.Do(ctx, r.guardKey(action, payload, s), s.throttle, s.trailing, payload, run)
		return r.guarded(ctx, action, s, res, err)
	default:
		return r.execute(ctx, action, payload, s), nil
	}
}

func (r *Registry[P, R]) guardKey(action string, payload P, s *resolvedDispatch[P, R]) string {
	if s.guardKey == nil {
		return action
	}
	return action + ":" + s.guardKey(payload)
}

// guarded maps the outcome of a debounced or throttled call. Callers sharing
// one run each get their own copy of the result.
func (r *Registry[P, R]) guarded(ctx context.Context, action string, s *resolvedDispatch[P, R], res *ExecutionResult[R], err error) (*ExecutionResult[R], error) {
	switch {
	case err == nil:
		return res.clone(), nil
	case errors.Is(err, guard.ErrStopped):
		return nil, ErrDisposed
	case errors.Is(err, guard.ErrThrottled):
		return r.rejected(ctx, action, s, ReasonThrottled), nil
	default:
		return r.rejected(ctx, action, s, ReasonCancelled), nil
	}
}

// rejected builds the result of a dispatch that never ran its handlers.
func (r *Registry[P, R]) rejected(ctx context.Context, action string, s *resolvedDispatch[P, R], reason string) *ExecutionResult[R] {
	mode := s.mode
	if mode == "" {
		mode = r.ActionMode(action)
	}

	start := time.Now()
	snapshot := r.snapshot(action)
	run := newPipeline(action, mode, *new(P), s, snapshot)
	for i := range run.outcomes {
		run.outcomes[i].Status = StatusSkipped
		run.outcomes[i].SkipReason = reason
	}
	run.abort(reason)
	if reason == ReasonThrottled {
		run.fail("", false, ErrThrottled)
	}

	res := finalize(run, s, uuid.NewString(), start)
	r.finish(ctx, res)
	return res
}

func (r *Registry[P, R]) execute(ctx context.Context, action string, payload P, s *resolvedDispatch[P, R]) *ExecutionResult[R] {
	start := time.Now()
	executionID := uuid.NewString()
	mode := s.mode
	if mode == "" {
		mode = r.ActionMode(action)
	}
	snapshot := r.snapshot(action)

	ctx, span := r.tracer.Start(ctx, "actions.dispatch",
		observability.WithSpanKind(observability.SpanKindInternal),
		observability.WithAttributes(
			observability.String("action", action),
			observability.String("mode", string(mode)),
			observability.String("execution_id", executionID),
			observability.Int("handlers", len(snapshot)),
		))
	defer span.End()

	actionField := observability.String("action", action)
	r.metrics.inflight.Add(ctx, 1, actionField)
	defer r.metrics.inflight.Add(ctx, -1, actionField)

	r.emit(ctx, Lifecycle{
		Type:        EventActionStart,
		Action:      action,
		ExecutionID: executionID,
		Mode:        mode,
		Handlers:    len(snapshot),
		StartTime:   start,
	})

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(runCtx, s.timeout,
			fmt.Errorf("%w: dispatch exceeded %s", ErrTimeout, s.timeout))
		defer cancel()
	}

	run := newPipeline(action, mode, payload, s, snapshot)

	if s.autoAbort.Enabled {
		var cancel context.CancelCauseFunc
		runCtx, cancel = context.WithCancelCause(runCtx)
		defer cancel(nil)

		if s.autoAbort.AllowHandlerAbort {
			run.cancel = cancel
		}
		if s.autoAbort.OnAbortReady != nil {
			s.autoAbort.OnAbortReady(func(reason string) {
				run.abort(reason)
				cancel(ErrAborted)
			})
		}
	}

	invs := r.qualify(run, snapshot, s.filter)
	r.runStrategy(runCtx, run, invs, s)

	res := finalize(run, s, executionID, start)

	span.SetAttributes(
		observability.Bool("success", res.Success),
		observability.Bool("aborted", res.Aborted),
		observability.Int("handlers_executed", res.Execution.HandlersExecuted),
		observability.Int("handlers_failed", res.Execution.HandlersFailed),
	)
	if err := res.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusCodeError, err.Error())
	} else {
		span.SetStatus(observability.StatusCodeOK, res.Outcome())
	}

	r.finish(ctx, res)
	return res
}

// finish records stats and metrics and publishes the terminal lifecycle event.
func (r *Registry[P, R]) finish(ctx context.Context, res *ExecutionResult[R]) {
	r.stats.record(res.Action, res.Outcome(), res.AbortReason == ReasonThrottled, res.Execution.Duration)

	fields := []observability.Field{
		observability.String("action", res.Action),
		observability.String("outcome", res.Outcome()),
	}
	r.metrics.dispatches.Increment(ctx, fields...)
	r.metrics.duration.Record(ctx, float64(res.Execution.Duration.Microseconds())/1000, fields...)

	if r.config.Debug {
		r.logger.Debug(ctx, "action dispatched",
			observability.String("action", res.Action),
			observability.String("execution_id", res.ExecutionID),
			observability.String("mode", string(res.Mode)),
			observability.String("outcome", res.Outcome()),
			observability.Duration("duration", res.Execution.Duration),
			observability.Int("handlers_executed", res.Execution.HandlersExecuted),
			observability.Int("handlers_skipped", res.Execution.HandlersSkipped),
			observability.Int("handlers_failed", res.Execution.HandlersFailed))
	}
	if err := res.Err(); err != nil {
		r.logger.Error(ctx, "action failed",
			observability.String("action", res.Action),
			observability.String("execution_id", res.ExecutionID),
			observability.Error(err))
	}

	r.emit(ctx, completionLifecycle(res))
}
