// Package events provides a thread-safe event dispatcher with a synchronous
// Dispatch path and a non-blocking, queue-backed Publish path.
package events

import (
	"context"
)

// Event represents a domain event with a type identifier and payload.
//
// GetPayload returns any. Handlers validate the payload type with the ok idiom:
//
//	payload, ok := event.GetPayload().(ExpectedType)
//	if !ok {
//	    return fmt.Errorf("unexpected payload type: %T", event.GetPayload())
//	}
type Event interface {
	// GetEventType returns the identifier used to match registered handlers.
	GetEventType() string
	GetPayload() any
}

// EventDispatcher manages event handlers and delivers events to them.
// All implementations must be safe for concurrent use by multiple goroutines.
type EventDispatcher interface {
	// Register adds a handler for the specified event type.
	// Returns an error if the handler is nil, already registered, or if eventType is empty.
	Register(eventType string, handler EventHandler) error

	// Dispatch sends an event to all registered handlers synchronously, in
	// registration order. It stops at the first handler error and returns it.
	Dispatch(ctx context.Context, event Event) error

	// Publish queues an event for asynchronous delivery and returns without
	// waiting for handlers. It returns ErrQueueFull when the buffer is
	// exhausted and ErrDispatcherClosed after Close. Handler errors are
	// reported to the configured error handler.
	Publish(ctx context.Context, event Event) error

	// Flush blocks until every event published before the call was delivered.
	Flush(ctx context.Context) error

	// Remove unregisters a handler. Removing an unknown handler is a no-op.
	Remove(eventType string, handler EventHandler) error

	// Has reports whether the exact handler instance is registered for eventType.
	Has(eventType string, handler EventHandler) bool

	// Clear removes all registered handlers for all event types.
	Clear()

	// Close stops accepting published events and waits for queued ones to be delivered.
	Close() error
}

// EventHandler processes events of a specific type.
//
// Handlers are compared by identity. Register pointers so Has and Remove work.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// ErrorHandler receives errors returned by handlers during asynchronous delivery.
type ErrorHandler func(ctx context.Context, event Event, err error)

// HandlerFunc adapts a function to EventHandler. Use NewHandlerFunc so the
// result is comparable.
type HandlerFunc func(ctx context.Context, event Event) error

type funcHandler struct {
	fn HandlerFunc
}

func (h *funcHandler) Handle(ctx context.Context, event Event) error {
	return h.fn(ctx, event)
}

// NewHandlerFunc wraps fn in a pointer handler that can be registered and removed.
func NewHandlerFunc(fn HandlerFunc) EventHandler {
	return &funcHandler{fn: fn}
}
