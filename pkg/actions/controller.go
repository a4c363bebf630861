package actions

import (
	"context"
	"sync"
	"time"
)

type contribution[R any] struct {
	handlerID string
	value     R
}

// pipeline is the run-scoped state of one dispatch. Every field is guarded by
// mu. Once finalized, late writers from background goroutines are ignored.
type pipeline[P, R any] struct {
	mu sync.Mutex

	action     string
	mode       Mode
	payload    P
	collect    bool
	maxResults int

	aborted     bool
	abortReason string

	terminated        bool
	terminationResult R
	hasTermination    bool

	results []contribution[R]

	jumped          bool
	currentPriority int

	outcomes []HandlerOutcome[R]
	failures []HandlerFailure

	// winnerID restricts collected results to the race winner.
	winnerID    string
	interrupted bool
	finalized   bool

	// cancel is set when handler aborts must reach in-flight handlers.
	cancel context.CancelCauseFunc
}

func (p *pipeline[P, R]) currentPayload() P {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payload
}

// abort records the first abort reason.
func (p *pipeline[P, R]) abort(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abortLocked(reason)
}

func (p *pipeline[P, R]) abortLocked(reason string) {
	if p.finalized || p.aborted {
		return
	}
	p.aborted = true
	p.abortReason = reason
}

// stopped reports whether the sequential loop must stop scheduling.
func (p *pipeline[P, R]) stopped() (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.aborted:
		return true, "pipeline aborted: " + p.abortReason
	case p.terminated:
		return true, "pipeline terminated"
	}
	return false, ""
}

// jumpedPast reports whether priority was skipped by JumpToPriority.
func (p *pipeline[P, R]) jumpedPast(priority int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jumped && priority > p.currentPriority
}

// update applies fn to the outcome of inv unless the outcome was already
// settled by the strategy or the dispatch finished.
func (p *pipeline[P, R]) update(inv *invocation[P, R], fn func(*HandlerOutcome[R])) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finalized && !inv.settled {
		fn(&p.outcomes[inv.index])
	}
}

func (p *pipeline[P, R]) skip(inv *invocation[P, R], reason string) {
	p.update(inv, func(o *HandlerOutcome[R]) {
		o.Status = StatusSkipped
		o.SkipReason = reason
	})
}

func (p *pipeline[P, R]) fail(handlerID string, blocking bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failLocked(handlerID, blocking, err)
}

func (p *pipeline[P, R]) failLocked(handlerID string, blocking bool, err error) {
	if p.finalized {
		return
	}
	p.failures = append(p.failures, HandlerFailure{
		HandlerID: handlerID,
		Err:       err,
		Blocking:  blocking,
		Timestamp: time.Now(),
	})
}

// invocation is the per-handler state behind a Controller, guarded by the
// pipeline mutex.
type invocation[P, R any] struct {
	index int
	reg   *registration[P, R]

	abortCalled bool
	abortReason string

	returned    bool
	returnValue R

	lastResult R
	hasResult  bool

	// settled is set when the strategy decided the outcome (race loser, result
	// timeout); the handler's own late completion is then ignored.
	settled bool
}

// Controller is the handler-facing API of a running pipeline. It is bound to
// one handler invocation and ignores calls once the dispatch has finished.
type Controller[P, R any] struct {
	run *pipeline[P, R]
	inv *invocation[P, R]
}

// HandlerID returns the id of the handler this controller is bound to.
func (c *Controller[P, R]) HandlerID() string {
	return c.inv.reg.info.ID
}

// Action returns the dispatched action name.
func (c *Controller[P, R]) Action() string {
	return c.run.action
}

// Aborted reports whether the pipeline has been aborted.
func (c *Controller[P, R]) Aborted() bool {
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	return c.run.aborted
}

// Abort stops the pipeline. In race mode the abort only counts when this
// handler wins the race and is blocking.
func (c *Controller[P, R]) Abort(reason string) {
	c.run.mu.Lock()
	if c.run.finalized {
		c.run.mu.Unlock()
		return
	}
	c.inv.abortCalled = true
	c.inv.abortReason = reason
	if c.run.mode != ModeRace {
		c.run.abortLocked(reason)
	}
	cancel := c.run.cancel
	c.run.mu.Unlock()

	if cancel != nil && c.run.mode != ModeRace {
		cancel(ErrAborted)
	}
}

// Payload returns the live payload, including changes made by earlier handlers.
func (c *Controller[P, R]) Payload() P {
	return c.run.currentPayload()
}

// ModifyPayload replaces the payload with fn(payload). Handlers invoked later
// see the new value; handlers already running concurrently do not.
func (c *Controller[P, R]) ModifyPayload(fn func(P) P) {
	next := fn(c.run.currentPayload())

	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	if !c.run.finalized {
		c.run.payload = next
	}
}

// JumpToPriority skips every remaining handler whose priority is strictly
// greater than priority. Handlers at exactly priority still run.
func (c *Controller[P, R]) JumpToPriority(priority int) error {
	if c.run.mode != ModeSequential {
		return ErrJumpUnsupported
	}

	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	if !c.run.finalized {
		c.run.jumped = true
		c.run.currentPriority = priority
	}
	return nil
}

// Return terminates the pipeline with result. Remaining sequential handlers
// are skipped; parallel siblings keep running.
func (c *Controller[P, R]) Return(result R) {
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	if c.run.finalized {
		return
	}

	c.inv.returned = true
	c.inv.returnValue = result
	c.inv.lastResult = result
	c.inv.hasResult = true

	if c.run.mode != ModeRace {
		c.run.terminated = true
		c.run.terminationResult = result
		c.run.hasTermination = true
	}
}

// SetResult appends result to the accumulator without terminating. When the
// accumulator is full the contribution is dropped.
func (c *Controller[P, R]) SetResult(result R) {
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	if c.run.finalized {
		return
	}

	c.inv.lastResult = result
	c.inv.hasResult = true

	if !c.run.collect {
		return
	}
	if c.run.maxResults > 0 && len(c.run.results) >= c.run.maxResults {
		return
	}
	c.run.results = append(c.run.results, contribution[R]{handlerID: c.HandlerID(), value: result})
}

// Results returns the accumulated results.
func (c *Controller[P, R]) Results() []R {
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	return contributionValues(c.run.results)
}

// MergeResult replaces the accumulator with fn(results).
func (c *Controller[P, R]) MergeResult(fn func([]R) R) {
	merged := fn(c.Results())

	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	if c.run.finalized || !c.run.collect {
		return
	}
	c.inv.lastResult = merged
	c.inv.hasResult = true
	c.run.results = []contribution[R]{{handlerID: c.HandlerID(), value: merged}}
}

func contributionValues[R any](items []contribution[R]) []R {
	values := make([]R, len(items))
	for i, c := range items {
		values[i] = c.value
	}
	return values
}
