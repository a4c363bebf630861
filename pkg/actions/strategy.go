package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// ReasonCancelled is the abort reason when the caller's context is cancelled.
	ReasonCancelled = "dispatch cancelled"
	// ReasonTimeout is the abort reason when WithTimeout expires.
	ReasonTimeout = "dispatch timeout exceeded"
	// ReasonThrottled is the abort reason of a throttled dispatch.
	ReasonThrottled = "throttled"
)

func (r *Registry[P, R]) runStrategy(ctx context.Context, run *pipeline[P, R], invs []*invocation[P, R], s *resolvedDispatch[P, R]) {
	switch run.mode {
	case ModeParallel:
		r.runParallel(ctx, run, invs, s)
	case ModeRace:
		r.runRace(ctx, run, invs, s)
	default:
		r.runSequential(ctx, run, invs, s)
	}

	if ctx.Err() != nil {
		r.interrupt(ctx, run)
	}
}

// runSequential walks handlers in priority order. Blocking handlers are
// awaited; non-blocking ones are started in order and awaited at the end.
func (r *Registry[P, R]) runSequential(ctx context.Context, run *pipeline[P, R], invs []*invocation[P, R], s *resolvedDispatch[P, R]) {
	var background sync.WaitGroup
	var launched []*invocation[P, R]

	for k, inv := range invs {
		if stop, reason := run.stopped(); stop {
			skipAll(run, invs[k:], reason)
			break
		}
		if ctx.Err() != nil {
			skipAll(run, invs[k:], "dispatch interrupted")
			break
		}
		if run.jumpedPast(inv.reg.info.Priority) {
			run.skip(inv, "skipped by priority jump")
			continue
		}
		if !claim(inv) {
			run.skip(inv, "once handler already claimed")
			continue
		}

		retries := r.retriesFor(inv.reg, s)
		if inv.reg.info.Blocking {
			if err := r.invoke(ctx, run, inv, retries, nil); err != nil {
				skipAll(run, invs[k+1:], fmt.Sprintf("blocking handler %s failed", inv.reg.info.ID))
				break
			}
			continue
		}

		started := make(chan struct{})
		launched = append(launched, inv)
		background.Add(1)
		go func() {
			defer background.Done()
			_ = r.invoke(ctx, run, inv, retries, started)
		}()
		<-started
	}

	r.await(run, &background, launched, s.resultTimeout)
}

// runParallel starts every handler at once and waits for all of them. Aborts
// are honored for the final state but do not cancel siblings.
func (r *Registry[P, R]) runParallel(ctx context.Context, run *pipeline[P, R], invs []*invocation[P, R], s *resolvedDispatch[P, R]) {
	if ctx.Err() != nil {
		skipAll(run, invs, "dispatch interrupted")
		return
	}

	var wg sync.WaitGroup
	var launched []*invocation[P, R]
	for _, inv := range invs {
		if !claim(inv) {
			run.skip(inv, "once handler already claimed")
			continue
		}

		launched = append(launched, inv)
		retries := r.retriesFor(inv.reg, s)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.invoke(ctx, run, inv, retries, nil)
		}()
	}

	r.await(run, &wg, launched, s.resultTimeout)
}

type settlement[P, R any] struct {
	inv *invocation[P, R]
	err error
}

// runRace starts every handler and resolves on the first settlement. Losers
// keep running in the background; their outputs are discarded.
func (r *Registry[P, R]) runRace(ctx context.Context, run *pipeline[P, R], invs []*invocation[P, R], s *resolvedDispatch[P, R]) {
	if ctx.Err() != nil {
		skipAll(run, invs, "dispatch interrupted")
		return
	}

	var launched []*invocation[P, R]
	for _, inv := range invs {
		if !claim(inv) {
			run.skip(inv, "once handler already claimed")
			continue
		}
		launched = append(launched, inv)
	}
	if len(launched) == 0 {
		return
	}

	settled := make(chan settlement[P, R], len(launched))
	for _, inv := range launched {
		retries := r.retriesFor(inv.reg, s)
		go func() {
			err := r.invoke(ctx, run, inv, retries, nil)
			settled <- settlement[P, R]{inv: inv, err: err}
		}()
	}

	var expired <-chan time.Time
	if s.resultTimeout > 0 {
		timer := time.NewTimer(s.resultTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case first := <-settled:
		resolveRace(run, first, launched)
	case <-ctx.Done():
		settleRunning(run, launched, context.Cause(ctx))
	case <-expired:
		settleRunning(run, launched, fmt.Errorf("%w: no handler settled within %s", ErrTimeout, s.resultTimeout))
	}
}

func resolveRace[P, R any](run *pipeline[P, R], winner settlement[P, R], launched []*invocation[P, R]) {
	run.mu.Lock()
	defer run.mu.Unlock()

	for _, inv := range launched {
		if inv == winner.inv {
			continue
		}
		o := &run.outcomes[inv.index]
		o.Status = StatusCompleted
		o.Executed = true
		o.Discarded = true
		o.Err = nil
		o.HasResult = false
		o.Result = *new(R)
		inv.settled = true
	}

	inv := winner.inv
	blocking := inv.reg.info.Blocking
	run.winnerID = inv.reg.info.ID
	run.terminated = true

	if winner.err != nil {
		if !blocking {
			run.failLocked(inv.reg.info.ID, false, winner.err)
			return
		}
		raceErr := fmt.Errorf("%w: %w", ErrRaceFailure, winner.err)
		run.outcomes[inv.index].Err = raceErr
		run.failLocked(inv.reg.info.ID, true, raceErr)
		return
	}

	switch {
	case inv.returned:
		run.terminationResult = inv.returnValue
		run.hasTermination = true
	case inv.hasResult:
		run.terminationResult = inv.lastResult
		run.hasTermination = true
	}

	if inv.abortCalled && blocking {
		run.abortLocked(inv.abortReason)
	}
}

// await waits for background handlers, up to timeout when positive. Handlers
// still running when it expires are reported failed.
func (r *Registry[P, R]) await(run *pipeline[P, R], wg *sync.WaitGroup, launched []*invocation[P, R], timeout time.Duration) {
	if len(launched) == 0 {
		return
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		settleRunning(run, launched, fmt.Errorf("%w: no result within %s", ErrTimeout, timeout))
	}
}

// settleRunning fails every launched handler that has not finished yet.
func settleRunning[P, R any](run *pipeline[P, R], launched []*invocation[P, R], cause error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	for _, inv := range launched {
		o := &run.outcomes[inv.index]
		if inv.settled || o.Status == StatusCompleted || o.Status == StatusFailed {
			continue
		}

		err := &HandlerError{Action: run.action, HandlerID: inv.reg.info.ID, Attempts: max(o.Attempts, 1), Err: cause}
		o.Status = StatusFailed
		o.Executed = true
		o.Err = err
		inv.settled = true
		run.failLocked(inv.reg.info.ID, inv.reg.info.Blocking, err)
	}
}

// interrupt turns an ended dispatch context into an abort. A dispatch timeout
// is also recorded as a dispatch-level failure.
func (r *Registry[P, R]) interrupt(ctx context.Context, run *pipeline[P, R]) {
	cause := context.Cause(ctx)

	run.mu.Lock()
	defer run.mu.Unlock()
	if run.interrupted {
		return
	}
	run.interrupted = true

	switch {
	case errors.Is(cause, ErrTimeout):
		run.abortLocked(ReasonTimeout)
		run.failLocked("", true, cause)
	case errors.Is(cause, ErrAborted):
		run.abortLocked("aborted")
	default:
		run.abortLocked(ReasonCancelled)
	}
}

func claim[P, R any](inv *invocation[P, R]) bool {
	if !inv.reg.info.Once {
		return true
	}
	return inv.reg.claimed.CompareAndSwap(false, true)
}

func skipAll[P, R any](run *pipeline[P, R], invs []*invocation[P, R], reason string) {
	for _, inv := range invs {
		run.skip(inv, reason)
	}
}
