package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hearthshare/larder/pkg/catalog"
)

// Tx is a transactional unit of work: a pooled connection with an open
// transaction on it. Commit and Rollback release the connection back to the
// pool on every exit path; both are safe to call after the other has run.
type Tx struct {
	tx       *sql.Tx
	conn     *sql.Conn
	released int32
}

// ExecContext runs a statement inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query inside the transaction.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query inside the transaction.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Commit commits the transaction and releases the connection.
func (t *Tx) Commit() error {
	err := t.tx.Commit()
	t.release()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction and releases the connection. Calling
// it after Commit is a no-op.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	t.release()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *Tx) release() {
	if atomic.CompareAndSwapInt32(&t.released, 0, 1) {
		t.conn.Close()
	}
}

// Begin acquires a connection from the pool, waiting at most timeout, and
// opens a transaction on it. Pool exhaustion surfaces as a
// catalog.PoolExhaustionError before any transaction state exists. The
// transaction itself is bound to the caller's context.
func Begin(ctx context.Context, db *sql.DB, timeout time.Duration) (*Tx, error) {
	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &catalog.PoolExhaustionError{Err: err}
		}
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	return &Tx{tx: tx, conn: conn}, nil
}

// WithTx runs fn inside a transaction with the error contract the engine
// components share: any failure rolls back everything, constraint violations
// are classified, and a rollback failure supersedes the original error.
func WithTx(ctx context.Context, db *sql.DB, timeout time.Duration, fn func(tx *Tx) error) error {
	tx, err := Begin(ctx, db, timeout)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		err = catalog.WrapDBError(err)
		if rbErr := tx.Rollback(); rbErr != nil {
			return &catalog.RollbackError{Cause: err, RollbackErr: rbErr}
		}
		return err
	}

	return tx.Commit()
}
