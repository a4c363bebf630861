package actions

import (
	"context"
	"slices"
	"time"
)

// Mode selects how qualifying handlers are scheduled relative to each other.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
	ModeRace       Mode = "race"
)

func (m Mode) valid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeRace:
		return true
	}
	return false
}

// ResultStrategy selects how contributed results are reduced.
type ResultStrategy string

const (
	ResultFirst  ResultStrategy = "first"
	ResultLast   ResultStrategy = "last"
	ResultAll    ResultStrategy = "all"
	ResultMerge  ResultStrategy = "merge"
	ResultCustom ResultStrategy = "custom"
)

func (s ResultStrategy) valid() bool {
	switch s {
	case ResultFirst, ResultLast, ResultAll, ResultMerge, ResultCustom:
		return true
	}
	return false
}

// Environment scopes a handler to a deployment environment.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
	EnvironmentTest        Environment = "test"
)

// HandlerStatus is the per-dispatch state of one handler.
// pending -> running -> completed | failed | skipped.
type HandlerStatus string

const (
	StatusPending   HandlerStatus = "pending"
	StatusRunning   HandlerStatus = "running"
	StatusCompleted HandlerStatus = "completed"
	StatusFailed    HandlerStatus = "failed"
	StatusSkipped   HandlerStatus = "skipped"
)

// HandlerFunc is invoked when its action is dispatched. ctx carries the
// dispatch cancellation and deadlines; ctl is bound to this invocation only.
type HandlerFunc[P, R any] func(ctx context.Context, payload P, ctl *Controller[P, R]) error

// Returning adapts a function that produces a value. A nil error contributes
// the value through SetResult.
func Returning[P, R any](fn func(ctx context.Context, payload P) (R, error)) HandlerFunc[P, R] {
	return func(ctx context.Context, payload P, ctl *Controller[P, R]) error {
		result, err := fn(ctx, payload)
		if err != nil {
			return err
		}
		ctl.SetResult(result)
		return nil
	}
}

// HandlerInfo is the read-only view of a registration.
type HandlerInfo struct {
	ID            string            `json:"id"`
	Action        string            `json:"action"`
	Priority      int               `json:"priority"`
	Blocking      bool              `json:"blocking"`
	Once          bool              `json:"once"`
	HasCondition  bool              `json:"has_condition"`
	HasValidation bool              `json:"has_validation"`
	Tags          []string          `json:"tags,omitempty"`
	Category      string            `json:"category,omitempty"`
	Environment   Environment       `json:"environment,omitempty"`
	Feature       string            `json:"feature,omitempty"`
	Dependencies  []string          `json:"dependencies,omitempty"`
	Conflicts     []string          `json:"conflicts,omitempty"`
	Timeout       time.Duration     `json:"timeout,omitempty"`
	Retries       int               `json:"retries"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	RegisteredAt  time.Time         `json:"registered_at"`
}

func (h HandlerInfo) clone() HandlerInfo {
	h.Tags = slices.Clone(h.Tags)
	h.Dependencies = slices.Clone(h.Dependencies)
	h.Conflicts = slices.Clone(h.Conflicts)
	if h.Metadata != nil {
		m := make(map[string]string, len(h.Metadata))
		for k, v := range h.Metadata {
			m[k] = v
		}
		h.Metadata = m
	}
	return h
}

// Execution holds run-level timing and counters.
// HandlersExecuted + HandlersSkipped always equals the number of handlers in
// the dispatch snapshot. HandlersFailed is a subset of HandlersExecuted.
type Execution struct {
	Duration         time.Duration
	HandlersExecuted int
	HandlersSkipped  int
	HandlersFailed   int
	StartTime        time.Time
	EndTime          time.Time
}

// HandlerOutcome reports what happened to one handler of the snapshot.
type HandlerOutcome[R any] struct {
	ID         string
	Priority   int
	Blocking   bool
	Status     HandlerStatus
	Executed   bool
	SkipReason string
	Duration   time.Duration
	Attempts   int
	Result     R
	HasResult  bool
	Err        error
	// Discarded marks a race loser whose output was ignored.
	Discarded bool
	Metadata  map[string]string
}

// HandlerFailure is an entry of ExecutionResult.Errors. HandlerID is empty for
// dispatch-level failures such as a dispatch timeout.
type HandlerFailure struct {
	HandlerID string
	Err       error
	Blocking  bool
	Timestamp time.Time
}

// ExecutionResult is the immutable record of one dispatch.
type ExecutionResult[R any] struct {
	ExecutionID string
	Action      string
	Mode        Mode
	Success     bool
	Aborted     bool
	AbortReason string
	Terminated  bool
	// Result is the reduced result. HasResult is false for the "all" strategy
	// and when no handler produced anything.
	Result    R
	HasResult bool
	// Results has one slot per executed handler, in snapshot order, holding
	// its latest contribution or nil when it contributed nothing. Race losers
	// are always nil.
	Results   []*R
	Execution Execution
	Handlers  []HandlerOutcome[R]
	Errors    []HandlerFailure
}

// Err returns the first blocking failure, or nil when the dispatch succeeded
// or was only aborted.
func (r *ExecutionResult[R]) Err() error {
	if r == nil || r.Success {
		return nil
	}
	for _, f := range r.Errors {
		if f.Blocking {
			return f.Err
		}
	}
	return nil
}

// Outcome summarises the run as success, aborted or failed.
func (r *ExecutionResult[R]) Outcome() string {
	switch {
	case r.Success:
		return "success"
	case r.Aborted:
		return "aborted"
	default:
		return "failed"
	}
}

// Handler returns the entry for handler id.
func (r *ExecutionResult[R]) Handler(id string) (HandlerOutcome[R], bool) {
	for _, h := range r.Handlers {
		if h.ID == id {
			return h, true
		}
	}
	return HandlerOutcome[R]{}, false
}

// Values returns the contributed values of Results, skipping empty slots.
func (r *ExecutionResult[R]) Values() []R {
	values := make([]R, 0, len(r.Results))
	for _, v := range r.Results {
		if v != nil {
			values = append(values, *v)
		}
	}
	return values
}

func (r *ExecutionResult[R]) clone() *ExecutionResult[R] {
	c := *r
	if r.Results != nil {
		c.Results = make([]*R, len(r.Results))
		for i, v := range r.Results {
			if v != nil {
				value := *v
				c.Results[i] = &value
			}
		}
	}
	c.Handlers = slices.Clone(r.Handlers)
	c.Errors = slices.Clone(r.Errors)
	return &c
}
