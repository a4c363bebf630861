package actions

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationFailed marks a handler skipped by its condition or validation.
	ErrValidationFailed = errors.New("actions: validation failed")

	// ErrTimeout is wrapped by handler and dispatch timeouts.
	ErrTimeout = errors.New("actions: timeout")

	// ErrAborted is the cause attached to contexts cancelled by an abort.
	ErrAborted = errors.New("actions: aborted")

	// ErrRegistrationLimitExceeded is returned when an action already holds MaxHandlers handlers.
	ErrRegistrationLimitExceeded = errors.New("actions: registration limit exceeded")

	// ErrRaceFailure is wrapped when the winner of a race is a blocking handler that failed.
	ErrRaceFailure = errors.New("actions: race winner failed")

	// ErrThrottled is the cause recorded for throttled dispatches.
	ErrThrottled = errors.New("actions: dispatch throttled")

	// ErrDuplicateHandler is returned when a handler id is already registered for the action.
	ErrDuplicateHandler = errors.New("actions: duplicate handler id")

	// ErrHandlerConflict is returned when a handler conflicts with a registered one.
	ErrHandlerConflict = errors.New("actions: handler conflict")

	// ErrUnknownAction is returned for actions without handlers when StrictActions is set.
	ErrUnknownAction = errors.New("actions: unknown action")

	// ErrJumpUnsupported is returned by JumpToPriority outside sequential mode.
	ErrJumpUnsupported = errors.New("actions: jump to priority requires sequential mode")

	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("actions: registry disposed")

	// ErrInvalidOption wraps option and configuration errors.
	ErrInvalidOption = errors.New("actions: invalid option")

	// ErrActionEmpty is returned for an empty action name.
	ErrActionEmpty = errors.New("actions: action name cannot be empty")

	// ErrHandlerNil is returned when registering a nil handler.
	ErrHandlerNil = errors.New("actions: handler cannot be nil")
)

// HandlerError is a handler failure after retries were exhausted.
type HandlerError struct {
	Action    string
	HandlerID string
	Attempts  int
	Err       error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s on action %s failed after %d attempt(s): %v",
		e.HandlerID, e.Action, e.Attempts, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func invalidOption(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOption, fmt.Sprintf(format, args...))
}
