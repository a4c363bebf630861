// Package audit records finished dispatches. It subscribes to the terminal
// lifecycle events of a registry and writes one history.Execution per
// dispatch to every configured Sink.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/JailtonJunior94/actionflow/pkg/actions"
	"github.com/JailtonJunior94/actionflow/pkg/history"
	"github.com/JailtonJunior94/actionflow/pkg/observability"
)

// Source is implemented by *actions.Registry.
type Source interface {
	On(t actions.EventType, fn func(ctx context.Context, l actions.Lifecycle)) (func(), error)
}

// Sink receives execution records. Errors are logged by the subscriber and
// never reach the dispatch.
type Sink interface {
	Name() string
	Write(ctx context.Context, e history.Execution) error
}

var terminal = []actions.EventType{
	actions.EventActionComplete,
	actions.EventActionAbort,
	actions.EventActionError,
}

// Subscriber forwards terminal lifecycle events to sinks.
type Subscriber struct {
	logger observability.Logger
	sinks  []Sink

	mu  sync.Mutex
	off []func()
}

// Attach subscribes to src. The subscriber stays attached until Detach.
func Attach(src Source, logger observability.Logger, sinks ...Sink) (*Subscriber, error) {
	if len(sinks) == 0 {
		return nil, errors.New("audit: at least one sink is required")
	}

	s := &Subscriber{
		logger: logger.With(observability.String("component", "audit")),
		sinks:  sinks,
	}
	for _, t := range terminal {
		off, err := src.On(t, s.handle)
		if err != nil {
			s.Detach()
			return nil, err
		}
		s.off = append(s.off, off)
	}
	return s, nil
}

// Detach unsubscribes from every event type.
func (s *Subscriber) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, off := range s.off {
		off()
	}
	s.off = nil
}

func (s *Subscriber) handle(ctx context.Context, l actions.Lifecycle) {
	record := Record(l)
	if l.Result != nil {
		result, err := json.Marshal(l.Result)
		if err != nil {
			s.logger.Warn(ctx, "result not serializable, recording without it",
				observability.String("execution_id", l.ExecutionID),
				observability.Error(err))
		} else {
			record.Result = result
		}
	}

	for _, sink := range s.sinks {
		if err := sink.Write(ctx, record); err != nil {
			s.logger.Error(ctx, "audit sink failed",
				observability.String("sink", sink.Name()),
				observability.String("action", l.Action),
				observability.String("execution_id", l.ExecutionID),
				observability.Error(err))
		}
	}
}

// Record converts a terminal lifecycle event into an execution record. The
// result is left empty; Subscriber fills it when it serializes.
func Record(l actions.Lifecycle) history.Execution {
	e := history.Execution{
		ID:               l.ExecutionID,
		Registry:         l.Registry,
		Action:           l.Action,
		Mode:             string(l.Mode),
		Outcome:          outcome(l),
		Success:          l.Success,
		Aborted:          l.Aborted,
		AbortReason:      l.AbortReason,
		Terminated:       l.Terminated,
		HandlersExecuted: l.HandlersExecuted,
		HandlersSkipped:  l.HandlersSkipped,
		HandlersFailed:   l.HandlersFailed,
		StartedAt:        l.StartTime,
		Duration:         l.Duration,
	}
	for _, le := range l.Errors {
		e.Errors = append(e.Errors, history.ExecutionError{HandlerID: le.HandlerID, Message: le.Message})
	}
	return e
}

func outcome(l actions.Lifecycle) string {
	switch {
	case l.Success:
		return "success"
	case l.Aborted:
		return "aborted"
	default:
		return "failed"
	}
}
