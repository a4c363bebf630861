package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SaveBatch inserts every execution in one transaction. Nothing is stored
// when any of them is invalid or fails to insert.
func (s *SQLStore) SaveBatch(ctx context.Context, executions []Execution) error {
	for _, e := range executions {
		if err := e.validate(); err != nil {
			return err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	return s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		for _, e := range executions {
			if err := s.insert(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Prune deletes executions started before cutoff and reports how many were
// removed.
func (s *SQLStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	res, err := s.db.ExecContext(ctx, s.pruneQuery, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("history: prune executions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: prune executions: %w", err)
	}
	return n, nil
}

// withTx runs fn in a transaction, committing when it returns nil and rolling
// back on error or panic. Panics are re-raised after the rollback.
func (s *SQLStore) withTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("history: rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}
