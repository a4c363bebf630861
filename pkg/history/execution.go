// Package history persists completed dispatches so they can be inspected after
// the fact. Records are written by the audit subscriber and read by the admin
// router.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get for an unknown execution id.
	ErrNotFound = errors.New("history: execution not found")

	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("history: store closed")

	// ErrInvalidExecution is returned by Save for a record without id or action.
	ErrInvalidExecution = errors.New("history: execution requires id and action")
)

// Execution is the stored summary of one dispatch.
type Execution struct {
	ID               string           `json:"id"`
	Registry         string           `json:"registry"`
	Action           string           `json:"action"`
	Mode             string           `json:"mode"`
	Outcome          string           `json:"outcome"`
	Success          bool             `json:"success"`
	Aborted          bool             `json:"aborted"`
	AbortReason      string           `json:"abort_reason,omitempty"`
	Terminated       bool             `json:"terminated"`
	HandlersExecuted int              `json:"handlers_executed"`
	HandlersSkipped  int              `json:"handlers_skipped"`
	HandlersFailed   int              `json:"handlers_failed"`
	Errors           []ExecutionError `json:"errors,omitempty"`
	Result           json.RawMessage  `json:"result,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	Duration         time.Duration    `json:"duration"`
}

// ExecutionError is a handler failure of an Execution. HandlerID is empty for
// dispatch-level failures.
type ExecutionError struct {
	HandlerID string `json:"handler_id,omitempty"`
	Message   string `json:"message"`
}

func (e Execution) validate() error {
	if e.ID == "" || e.Action == "" {
		return ErrInvalidExecution
	}
	return nil
}

// Store saves and queries executions. Implementations are safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, e Execution) error
	Get(ctx context.Context, id string) (Execution, error)
	// List returns the most recent executions first. An empty action lists
	// every action; limit <= 0 applies the store default.
	List(ctx context.Context, action string, limit int) ([]Execution, error)
	Close() error
}
