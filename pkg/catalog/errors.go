package catalog

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// NotFoundError indicates a referenced resource id does not exist. It always
// aborts the enclosing transaction.
type NotFoundError struct {
	Resource ResourceType
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Resource, e.ID)
}

// NewNotFound builds a NotFoundError for the given resource.
func NewNotFound(resource ResourceType, id int64) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ConstraintViolationError wraps a foreign-key or unique violation reported
// by the store. It is propagated unchanged after rollback.
type ConstraintViolationError struct {
	Constraint string
	Err        error
}

func (e *ConstraintViolationError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("constraint violation (%s): %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("constraint violation: %v", e.Err)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// PoolExhaustionError indicates no connection was available. It is surfaced
// before any transaction begins, so no rollback is needed.
type PoolExhaustionError struct {
	Err error
}

func (e *PoolExhaustionError) Error() string {
	return fmt.Sprintf("connection pool exhausted: %v", e.Err)
}

func (e *PoolExhaustionError) Unwrap() error { return e.Err }

// RollbackError reports that rolling back after a prior failure itself
// failed. The rollback failure is the surfaced error since it represents a
// possibly inconsistent state; the original cause stays reachable via Cause.
type RollbackError struct {
	Cause       error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback failed: %v (original error: %v)", e.RollbackErr, e.Cause)
}

func (e *RollbackError) Unwrap() error { return e.RollbackErr }

// WrapDBError classifies a database error into the package taxonomy.
// Integrity violations (postgres error class 23) become
// ConstraintViolationError; everything else passes through unchanged.
func WrapDBError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return &ConstraintViolationError{Constraint: pqErr.Constraint, Err: err}
	}
	return err
}
