package actions

import (
	"errors"
	"time"
)

// Filter selects which snapshot handlers qualify for a dispatch. Empty fields
// do not filter. Handlers that do not match are skipped, never failed.
type Filter struct {
	// Tags keeps handlers carrying at least one of the tags.
	Tags        []string
	ExcludeTags []string

	Category        string
	ExcludeCategory string

	HandlerIDs        []string
	ExcludeHandlerIDs []string

	// Environment keeps handlers without an environment or with this one.
	Environment Environment
	// Feature keeps handlers without a feature or with this one.
	Feature string

	Custom func(HandlerInfo) bool
}

// AutoAbort hands the caller an abort function for an in-flight dispatch.
type AutoAbort struct {
	Enabled bool
	// AllowHandlerAbort makes Controller.Abort cancel the dispatch context too,
	// so running handlers observe it.
	AllowHandlerAbort bool
	// OnAbortReady receives the abort function before the first handler runs.
	OnAbortReady func(abort func(reason string))
}

type dispatchSettings struct {
	mode          Mode
	debounce      time.Duration
	throttle      time.Duration
	trailing      bool
	guardKey      any
	timeout       time.Duration
	retries       int
	retriesSet    bool
	filter        *Filter
	strategy      ResultStrategy
	merger        any
	reducer       any
	collect       bool
	resultTimeout time.Duration
	maxResults    int
	autoAbort     AutoAbort
}

// DispatchOption configures a single dispatch.
type DispatchOption func(*dispatchSettings)

// WithMode overrides the execution mode.
func WithMode(mode Mode) DispatchOption {
	return func(s *dispatchSettings) {
		s.mode = mode
	}
}

// WithDebounce delays the run until the guard key has been quiet for d.
// Callers collapsed into a run receive a copy of its result.
func WithDebounce(d time.Duration) DispatchOption {
	return func(s *dispatchSettings) {
		s.debounce = d
	}
}

// WithThrottle allows one run per guard key per interval. Rejected calls are
// reported as aborted with reason "throttled"; with trailing they instead wait
// for one run at the interval boundary using the latest payload.
func WithThrottle(interval time.Duration, trailing bool) DispatchOption {
	return func(s *dispatchSettings) {
		s.throttle = interval
		s.trailing = trailing
	}
}

// WithGuardKey derives a guard key from the payload. The key is appended to
// the action name. P must match the registry payload type.
func WithGuardKey[P any](fn func(P) string) DispatchOption {
	return func(s *dispatchSettings) {
		s.guardKey = fn
	}
}

// WithTimeout bounds the whole run.
func WithTimeout(d time.Duration) DispatchOption {
	return func(s *dispatchSettings) {
		s.timeout = d
	}
}

// WithRetries overrides the retry count of every handler in this dispatch.
func WithRetries(n int) DispatchOption {
	return func(s *dispatchSettings) {
		s.retries = n
		s.retriesSet = true
	}
}

// WithFilter restricts the qualifying handlers.
func WithFilter(f Filter) DispatchOption {
	return func(s *dispatchSettings) {
		s.filter = &f
	}
}

// WithResultStrategy selects the reduction. Default: last.
func WithResultStrategy(strategy ResultStrategy) DispatchOption {
	return func(s *dispatchSettings) {
		s.strategy = strategy
	}
}

// WithMerger sets the fold used by the merge strategy. Without a merger,
// merge behaves like last.
func WithMerger[R any](fn func(acc, next R) R) DispatchOption {
	return func(s *dispatchSettings) {
		s.merger = fn
		if s.strategy == "" {
			s.strategy = ResultMerge
		}
	}
}

// WithReducer sets the custom reduction. It receives one entry per snapshot
// handler, nil for handlers that produced nothing.
func WithReducer[R any](fn func([]*R) R) DispatchOption {
	return func(s *dispatchSettings) {
		s.reducer = fn
		if s.strategy == "" {
			s.strategy = ResultCustom
		}
	}
}

// WithoutCollect disables result accumulation.
func WithoutCollect() DispatchOption {
	return func(s *dispatchSettings) {
		s.collect = false
	}
}

// WithResultTimeout bounds how long the dispatch waits for non-blocking and
// parallel handlers. Handlers still running are reported failed with ErrTimeout.
func WithResultTimeout(d time.Duration) DispatchOption {
	return func(s *dispatchSettings) {
		s.resultTimeout = d
	}
}

// WithMaxResults caps the accumulator. The earliest contributions are kept.
func WithMaxResults(n int) DispatchOption {
	return func(s *dispatchSettings) {
		s.maxResults = n
	}
}

// WithAutoAbort exposes an abort function for the dispatch.
func WithAutoAbort(cfg AutoAbort) DispatchOption {
	return func(s *dispatchSettings) {
		s.autoAbort = cfg
	}
}

// resolvedDispatch is dispatchSettings with function options type-checked
// against the registry's payload and result types.
type resolvedDispatch[P, R any] struct {
	dispatchSettings
	guardKey func(P) string
	merger   func(acc, next R) R
	reducer  func([]*R) R
}

func resolveDispatch[P, R any](opts []DispatchOption) (resolvedDispatch[P, R], error) {
	s := dispatchSettings{collect: true}
	for _, opt := range opts {
		opt(&s)
	}

	r := resolvedDispatch[P, R]{dispatchSettings: s}
	if r.strategy == "" {
		r.strategy = ResultLast
	}

	var errs []error
	if s.mode != "" && !s.mode.valid() {
		errs = append(errs, invalidOption("unknown mode %q", s.mode))
	}
	if !r.strategy.valid() {
		errs = append(errs, invalidOption("unknown result strategy %q", r.strategy))
	}
	if s.debounce < 0 || s.throttle < 0 || s.timeout < 0 || s.resultTimeout < 0 {
		errs = append(errs, invalidOption("durations must not be negative"))
	}
	if s.debounce > 0 && s.throttle > 0 {
		errs = append(errs, invalidOption("debounce and throttle are mutually exclusive"))
	}
	if s.retries < 0 || s.maxResults < 0 {
		errs = append(errs, invalidOption("retries and max results must not be negative"))
	}

	if s.guardKey != nil {
		fn, ok := s.guardKey.(func(P) string)
		if !ok {
			errs = append(errs, invalidOption("guard key has type %T, want func(payload) string", s.guardKey))
		}
		r.guardKey = fn
	}
	if s.merger != nil {
		fn, ok := s.merger.(func(R, R) R)
		if !ok {
			errs = append(errs, invalidOption("merger is %T, want func(acc, next R) R", s.merger))
		}
		r.merger = fn
	}
	if s.reducer != nil {
		fn, ok := s.reducer.(func([]*R) R)
		if !ok {
			errs = append(errs, invalidOption("reducer is %T, want func([]*R) R", s.reducer))
		}
		r.reducer = fn
	}

	if len(errs) > 0 {
		return r, errors.Join(errs...)
	}
	return r, nil
}
