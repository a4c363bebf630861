package actions

import (
	"context"
	"errors"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/events"
	"github.com/JailtonJunior94/actionflow/pkg/observability"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventActionStart       EventType = "action:start"
	EventActionComplete    EventType = "action:complete"
	EventActionAbort       EventType = "action:abort"
	EventActionError       EventType = "action:error"
	EventHandlerRegister   EventType = "handler:register"
	EventHandlerUnregister EventType = "handler:unregister"
)

// EventTypes lists every lifecycle event type.
var EventTypes = []EventType{
	EventActionStart,
	EventActionComplete,
	EventActionAbort,
	EventActionError,
	EventHandlerRegister,
	EventHandlerUnregister,
}

// Lifecycle is the payload of every lifecycle event. Fields that do not apply
// to an event type are left zero.
type Lifecycle struct {
	Type        EventType
	Registry    string
	Action      string
	ExecutionID string
	Mode        Mode
	Timestamp   time.Time

	// handler:register and handler:unregister
	HandlerID string
	Priority  int
	// Handlers is the snapshot size on action:start and the remaining
	// registrations on handler events.
	Handlers int

	// action:complete, action:abort and action:error
	Success          bool
	Aborted          bool
	AbortReason      string
	Terminated       bool
	StartTime        time.Time
	Duration         time.Duration
	HandlersExecuted int
	HandlersSkipped  int
	HandlersFailed   int
	Errors           []LifecycleError
	Result           any
}

// LifecycleError is a flattened HandlerFailure.
type LifecycleError struct {
	HandlerID string
	Message   string
}

// LifecycleEvent adapts Lifecycle to events.Event.
type LifecycleEvent struct {
	Lifecycle Lifecycle
}

func (e LifecycleEvent) GetEventType() string {
	return string(e.Lifecycle.Type)
}

func (e LifecycleEvent) GetPayload() any {
	return e.Lifecycle
}

// LifecycleFrom extracts the Lifecycle payload of an event.
func LifecycleFrom(e events.Event) (Lifecycle, bool) {
	l, ok := e.GetPayload().(Lifecycle)
	return l, ok
}

// On subscribes fn to one lifecycle event type. Delivery is asynchronous and
// never blocks dispatch.
func (r *Registry[P, R]) On(t EventType, fn func(ctx context.Context, l Lifecycle)) (func(), error) {
	if r.disposed.Load() {
		return nil, ErrDisposed
	}

	handler := events.NewHandlerFunc(func(ctx context.Context, e events.Event) error {
		if l, ok := LifecycleFrom(e); ok && l.Registry == r.config.Name {
			fn(ctx, l)
		}
		return nil
	})
	if err := r.bus.Register(string(t), handler); err != nil {
		return nil, err
	}

	return func() { _ = r.bus.Remove(string(t), handler) }, nil
}

func (r *Registry[P, R]) emit(ctx context.Context, l Lifecycle) {
	l.Registry = r.config.Name
	l.Timestamp = time.Now()

	err := r.bus.Publish(ctx, LifecycleEvent{Lifecycle: l})
	if err != nil && !errors.Is(err, events.ErrDispatcherClosed) {
		r.logger.Warn(ctx, "lifecycle event dropped",
			observability.String("event", string(l.Type)),
			observability.String("action", l.Action),
			observability.Error(err))
	}
}

func completionLifecycle[R any](res *ExecutionResult[R]) Lifecycle {
	l := Lifecycle{
		Type:             EventActionComplete,
		Action:           res.Action,
		ExecutionID:      res.ExecutionID,
		Mode:             res.Mode,
		Success:          res.Success,
		Aborted:          res.Aborted,
		AbortReason:      res.AbortReason,
		Terminated:       res.Terminated,
		StartTime:        res.Execution.StartTime,
		Duration:         res.Execution.Duration,
		HandlersExecuted: res.Execution.HandlersExecuted,
		HandlersSkipped:  res.Execution.HandlersSkipped,
		HandlersFailed:   res.Execution.HandlersFailed,
		Handlers:         len(res.Handlers),
	}

	switch {
	case res.Aborted:
		l.Type = EventActionAbort
	case !res.Success:
		l.Type = EventActionError
	}

	for _, f := range res.Errors {
		l.Errors = append(l.Errors, LifecycleError{HandlerID: f.HandlerID, Message: f.Err.Error()})
	}
	if res.HasResult {
		l.Result = res.Result
	}
	return l
}
