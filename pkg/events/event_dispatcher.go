package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrHandlerAlreadyRegistered is returned when attempting to register a handler that is already registered.
	ErrHandlerAlreadyRegistered = errors.New("handler already registered")

	// ErrEventNil is returned when a nil event is passed to Dispatch or Publish.
	ErrEventNil = errors.New("event cannot be nil")

	// ErrHandlerNil is returned when a nil handler is passed to Register.
	ErrHandlerNil = errors.New("handler cannot be nil")

	// ErrEventTypeEmpty is returned when an empty event type is passed to Register.
	ErrEventTypeEmpty = errors.New("event type cannot be empty")

	// ErrQueueFull is returned by Publish when the delivery buffer is full. The event is dropped.
	ErrQueueFull = errors.New("event queue full")

	// ErrDispatcherClosed is returned by Publish after Close.
	ErrDispatcherClosed = errors.New("event dispatcher closed")
)

type envelope struct {
	ctx     context.Context
	event   Event
	barrier chan struct{}
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler

	closeMu   sync.RWMutex
	closed    bool
	queue     chan envelope
	done      chan struct{}
	closeOnce sync.Once

	onError ErrorHandler
}

func NewEventDispatcher(opts ...Option) EventDispatcher {
	s := settings{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&s)
	}

	ed := &eventDispatcher{
		handlers: make(map[string][]EventHandler, s.capacity),
		queue:    make(chan envelope, s.bufferSize),
		done:     make(chan struct{}),
		onError:  s.errorHandler,
	}
	go ed.run()
	return ed
}

func (ed *eventDispatcher) snapshot(eventType string) []EventHandler {
	ed.mu.RLock()
	defer ed.mu.RUnlock()

	handlers, ok := ed.handlers[eventType]
	if !ok {
		return nil
	}
	return slices.Clone(handlers)
}

func (ed *eventDispatcher) Dispatch(ctx context.Context, event Event) error {
	if event == nil {
		return ErrEventNil
	}

	for _, handler := range ed.snapshot(event.GetEventType()) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := safeHandle(ctx, handler, event); err != nil {
			return err
		}
	}
	return nil
}

func (ed *eventDispatcher) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return ErrEventNil
	}

	ed.closeMu.RLock()
	defer ed.closeMu.RUnlock()
	if ed.closed {
		return ErrDispatcherClosed
	}

	select {
	case ed.queue <- envelope{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (ed *eventDispatcher) Flush(ctx context.Context) error {
	barrier := make(chan struct{})

	ed.closeMu.RLock()
	if ed.closed {
		ed.closeMu.RUnlock()
		<-ed.done
		return nil
	}
	select {
	case ed.queue <- envelope{barrier: barrier}:
	case <-ctx.Done():
		ed.closeMu.RUnlock()
		return ctx.Err()
	}
	ed.closeMu.RUnlock()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run delivers queued events to every handler, unlike Dispatch which stops at
// the first error.
func (ed *eventDispatcher) run() {
	defer close(ed.done)

	for env := range ed.queue {
		if env.barrier != nil {
			close(env.barrier)
			continue
		}

		for _, handler := range ed.snapshot(env.event.GetEventType()) {
			if err := safeHandle(env.ctx, handler, env.event); err != nil && ed.onError != nil {
				ed.onError(env.ctx, env.event, err)
			}
		}
	}
}

func safeHandle(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panic on %q: %v", event.GetEventType(), r)
		}
	}()
	return handler.Handle(ctx, event)
}

func (ed *eventDispatcher) Register(eventName string, handler EventHandler) error {
	if eventName == "" {
		return ErrEventTypeEmpty
	}
	if handler == nil {
		return ErrHandlerNil
	}

	ed.mu.Lock()
	defer ed.mu.Unlock()

	if slices.Contains(ed.handlers[eventName], handler) {
		return ErrHandlerAlreadyRegistered
	}

	ed.handlers[eventName] = append(ed.handlers[eventName], handler)
	return nil
}

func (ed *eventDispatcher) Has(eventName string, handler EventHandler) bool {
	ed.mu.RLock()
	defer ed.mu.RUnlock()

	return slices.Contains(ed.handlers[eventName], handler)
}

func (ed *eventDispatcher) Remove(eventName string, handler EventHandler) error {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	handlers, ok := ed.handlers[eventName]
	if !ok {
		return nil
	}

	// New slice so in-flight snapshots keep their backing array.
	newHandlers := make([]EventHandler, 0, len(handlers))
	found := false
	for _, h := range handlers {
		if h == handler && !found {
			found = true
			continue
		}
		newHandlers = append(newHandlers, h)
	}

	if len(newHandlers) == 0 {
		delete(ed.handlers, eventName)
		return nil
	}

	ed.handlers[eventName] = newHandlers
	return nil
}

func (ed *eventDispatcher) Clear() {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	ed.handlers = make(map[string][]EventHandler)
}

func (ed *eventDispatcher) Close() error {
	ed.closeOnce.Do(func() {
		ed.closeMu.Lock()
		ed.closed = true
		close(ed.queue)
		ed.closeMu.Unlock()
	})
	<-ed.done
	return nil
}
