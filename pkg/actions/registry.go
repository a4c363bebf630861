// Package actions is an in-process, typed action dispatcher. Handlers are
// registered against named actions and run as a pipeline in sequential,
// parallel or race mode. A handler can abort the pipeline, rewrite the
// payload, jump to a lower priority, terminate early or contribute results,
// which are reduced by a configurable strategy into an ExecutionResult.
//
// A Registry is typed by its payload P and result R. P is usually a closed
// interface with one implementation per action.
package actions

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JailtonJunior94/actionflow/pkg/events"
	"github.com/JailtonJunior94/actionflow/pkg/guard"
	"github.com/JailtonJunior94/actionflow/pkg/linq"
	"github.com/JailtonJunior94/actionflow/pkg/observability"
	"github.com/oklog/ulid/v2"
)

type registration[P, R any] struct {
	info       HandlerInfo
	fn         HandlerFunc[P, R]
	condition  func(P) bool
	validation func(P) bool

	// claimed guards once handlers against concurrent dispatches.
	claimed atomic.Bool
}

// Registration is returned by Register.
type Registration struct {
	ID     string
	Action string

	unregister func() bool
}

// Unregister removes this exact registration. It reports whether it was
// still registered.
func (r *Registration) Unregister() bool {
	return r.unregister()
}

// Registry owns the handlers of every action and dispatches to them.
type Registry[P, R any] struct {
	config  Config
	logger  observability.Logger
	tracer  observability.Tracer
	metrics instruments
	bus     events.EventDispatcher
	ownsBus bool
	stats   *statsBook

	mu       sync.RWMutex
	handlers map[string][]*registration[P, R]
	modes    map[string]Mode

	debouncer *guard.Debouncer[P, *ExecutionResult[R]]
	throttler *guard.Throttler[P, *ExecutionResult[R]]
	disposed  atomic.Bool
}

// New creates a registry. Configuration errors wrap ErrInvalidOption.
func New[P, R any](opts ...Option) (*Registry[P, R], error) {
	s := newSettings(opts)
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	logger := s.obs.Logger().With(
		observability.String("component", "actions"),
		observability.String("registry", s.config.Name),
	)

	r := &Registry[P, R]{
		config:    s.config,
		logger:    logger,
		tracer:    s.obs.Tracer(),
		metrics:   newInstruments(s.obs.Metrics()),
		bus:       s.bus,
		stats:     newStatsBook(),
		handlers:  make(map[string][]*registration[P, R]),
		modes:     make(map[string]Mode),
		debouncer: guard.NewDebouncer[P, *ExecutionResult[R]](),
		throttler: guard.NewThrottler[P, *ExecutionResult[R]](),
	}

	if r.bus == nil {
		r.bus = events.NewEventDispatcher(
			events.WithBufferSize(s.config.EventBufferSize),
			events.WithErrorHandler(func(ctx context.Context, e events.Event, err error) {
				logger.Error(ctx, "lifecycle subscriber failed",
					observability.String("event", e.GetEventType()),
					observability.Error(err))
			}),
		)
		r.ownsBus = true
	}

	return r, nil
}

// Name returns the configured registry name.
func (r *Registry[P, R]) Name() string {
	return r.config.Name
}

// Config returns the resolved configuration.
func (r *Registry[P, R]) Config() Config {
	return r.config
}

// Events returns the bus lifecycle events are published to.
func (r *Registry[P, R]) Events() events.EventDispatcher {
	return r.bus
}

// Register adds fn to action. Handlers are kept sorted by priority,
// descending, with ties in registration order.
func (r *Registry[P, R]) Register(action string, fn HandlerFunc[P, R], opts ...HandlerOption) (*Registration, error) {
	if r.disposed.Load() {
		return nil, ErrDisposed
	}
	if action == "" {
		return nil, ErrActionEmpty
	}
	if fn == nil {
		return nil, ErrHandlerNil
	}

	reg, err := newRegistration(action, fn, opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	existing := r.handlers[action]
	if err := r.checkRegistration(existing, reg); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	next := make([]*registration[P, R], 0, len(existing)+1)
	next = append(next, existing...)
	next = append(next, reg)
	slices.SortStableFunc(next, func(a, b *registration[P, R]) int {
		return cmp.Compare(b.info.Priority, a.info.Priority)
	})
	r.handlers[action] = next
	count := len(next)
	r.mu.Unlock()

	ctx := context.Background()
	r.logger.Debug(ctx, "handler registered",
		observability.String("action", action),
		observability.String("handler_id", reg.info.ID),
		observability.Int("priority", reg.info.Priority),
		observability.Int("handlers", count))
	r.emit(ctx, Lifecycle{
		Type:      EventHandlerRegister,
		Action:    action,
		HandlerID: reg.info.ID,
		Priority:  reg.info.Priority,
		Handlers:  count,
	})

	return &Registration{
		ID:     reg.info.ID,
		Action: action,
		unregister: func() bool {
			return len(r.remove(action, func(x *registration[P, R]) bool { return x == reg })) > 0
		},
	}, nil
}

func newRegistration[P, R any](action string, fn HandlerFunc[P, R], opts []HandlerOption) (*registration[P, R], error) {
	hs := handlerSettings{info: HandlerInfo{Blocking: true}}
	for _, opt := range opts {
		opt(&hs)
	}

	errs := hs.errs
	reg := &registration[P, R]{fn: fn}

	if hs.condition != nil {
		cond, ok := hs.condition.(func(P) bool)
		if !ok {
			errs = append(errs, invalidOption("condition has type %T, want func(payload) bool", hs.condition))
		}
		reg.condition = cond
	}
	if hs.validation != nil {
		val, ok := hs.validation.(func(P) bool)
		if !ok {
			errs = append(errs, invalidOption("validation has type %T, want func(payload) bool", hs.validation))
		}
		reg.validation = val
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	reg.info = hs.info
	reg.info.Action = action
	reg.info.RegisteredAt = time.Now()
	if reg.info.ID == "" {
		reg.info.ID = ulid.Make().String()
	}
	return reg, nil
}

// checkRegistration must be called with r.mu held.
func (r *Registry[P, R]) checkRegistration(existing []*registration[P, R], reg *registration[P, R]) error {
	if len(existing) >= r.config.MaxHandlers {
		return fmt.Errorf("%w: action %q already has %d handlers",
			ErrRegistrationLimitExceeded, reg.info.Action, r.config.MaxHandlers)
	}

	id := reg.info.ID
	for _, x := range existing {
		if x.info.ID == id {
			return fmt.Errorf("%w: %q on action %q", ErrDuplicateHandler, id, reg.info.Action)
		}
		if slices.Contains(x.info.Conflicts, id) || slices.Contains(reg.info.Conflicts, x.info.ID) {
			return fmt.Errorf("%w: %q conflicts with %q on action %q",
				ErrHandlerConflict, id, x.info.ID, reg.info.Action)
		}
	}
	return nil
}

// Unregister removes handler id from action and reports whether it existed.
func (r *Registry[P, R]) Unregister(action, id string) bool {
	return len(r.remove(action, func(x *registration[P, R]) bool { return x.info.ID == id })) > 0
}

// Clear removes every handler of action.
func (r *Registry[P, R]) Clear(action string) {
	r.remove(action, func(*registration[P, R]) bool { return true })
}

// ClearAll removes every handler of every action.
func (r *Registry[P, R]) ClearAll() {
	for _, action := range r.Actions() {
		r.Clear(action)
	}
}

// remove drops the registrations of action that match and emits an
// unregister event for each of them. The stored slice is replaced, never
// modified, so in-flight snapshots stay intact.
func (r *Registry[P, R]) remove(action string, match func(*registration[P, R]) bool) []*registration[P, R] {
	r.mu.Lock()
	current, ok := r.handlers[action]
	if !ok {
		r.mu.Unlock()
		return nil
	}

	removed, kept := linq.Partition(current, match)
	if len(removed) == 0 {
		r.mu.Unlock()
		return nil
	}

	if len(kept) == 0 && r.config.AutoCleanup {
		delete(r.handlers, action)
		delete(r.modes, action)
	} else {
		r.handlers[action] = kept
	}
	count := len(kept)
	r.mu.Unlock()

	ctx := context.Background()
	for _, reg := range removed {
		r.logger.Debug(ctx, "handler unregistered",
			observability.String("action", action),
			observability.String("handler_id", reg.info.ID))
		r.emit(ctx, Lifecycle{
			Type:      EventHandlerUnregister,
			Action:    action,
			HandlerID: reg.info.ID,
			Priority:  reg.info.Priority,
			Handlers:  count,
		})
	}
	return removed
}

func (r *Registry[P, R]) snapshot(action string) []*registration[P, R] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[action]
}

// Registrations returns the handlers of action in execution order.
func (r *Registry[P, R]) Registrations(action string) []HandlerInfo {
	return linq.Map(r.snapshot(action), func(reg *registration[P, R]) HandlerInfo {
		return reg.info.clone()
	})
}

// Actions returns the known action names, sorted.
func (r *Registry[P, R]) Actions() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// HandlerCount returns the number of handlers registered for action.
func (r *Registry[P, R]) HandlerCount(action string) int {
	return len(r.snapshot(action))
}

// HasHandlers reports whether action has at least one handler.
func (r *Registry[P, R]) HasHandlers(action string) bool {
	return r.HandlerCount(action) > 0
}

// SetActionMode overrides the execution mode of action.
func (r *Registry[P, R]) SetActionMode(action string, mode Mode) error {
	if r.disposed.Load() {
		return ErrDisposed
	}
	if action == "" {
		return ErrActionEmpty
	}
	if !mode.valid() {
		return invalidOption("unknown mode %q", mode)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes[action] = mode
	return nil
}

// ActionMode returns the mode used for action when a dispatch does not set one.
func (r *Registry[P, R]) ActionMode(action string) Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if mode, ok := r.modes[action]; ok {
		return mode
	}
	return r.config.DefaultMode
}

// Dispose cancels pending guarded dispatches, removes every handler and
// closes the owned event bus. Every later call fails with ErrDisposed.
func (r *Registry[P, R]) Dispose() error {
	if !r.disposed.CompareAndSwap(false, true) {
		return nil
	}

	r.debouncer.Stop()
	r.throttler.Stop()
	r.ClearAll()

	r.logger.Debug(context.Background(), "registry disposed")

	if r.ownsBus {
		return r.bus.Close()
	}
	return nil
}
