package catalog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFound(ResourceRecipe, 42)
	assert.Equal(t, "recipe not found: 42", err.Error())
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsNotFound(errors.New("other")))
}

func TestWrapDBErrorConstraintViolation(t *testing.T) {
	pqErr := &pq.Error{Code: "23505", Constraint: "idx_recipes_household_parent"}

	wrapped := WrapDBError(pqErr)

	var cv *ConstraintViolationError
	assert.True(t, errors.As(wrapped, &cv))
	assert.Equal(t, "idx_recipes_household_parent", cv.Constraint)
	assert.True(t, errors.Is(wrapped, pqErr))
}

func TestWrapDBErrorForeignKey(t *testing.T) {
	pqErr := &pq.Error{Code: "23503", Constraint: "recipe_ingredients_recipe_id_fkey"}

	var cv *ConstraintViolationError
	assert.True(t, errors.As(WrapDBError(pqErr), &cv))
}

func TestWrapDBErrorPassthrough(t *testing.T) {
	// Non-integrity postgres errors and plain errors pass through unchanged.
	pqErr := &pq.Error{Code: "42601"}
	assert.Equal(t, error(pqErr), WrapDBError(pqErr))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, WrapDBError(plain))

	assert.NoError(t, WrapDBError(nil))
}

func TestRollbackErrorSurfacesRollbackFailure(t *testing.T) {
	cause := errors.New("insert failed")
	rbErr := errors.New("connection lost during rollback")

	err := &RollbackError{Cause: cause, RollbackErr: rbErr}

	assert.Contains(t, err.Error(), "rollback failed")
	assert.Contains(t, err.Error(), "connection lost during rollback")
	assert.Contains(t, err.Error(), "insert failed")
	assert.True(t, errors.Is(err, rbErr))
}

func TestPoolExhaustionError(t *testing.T) {
	inner := errors.New("context deadline exceeded")
	err := &PoolExhaustionError{Err: inner}

	assert.Contains(t, err.Error(), "connection pool exhausted")
	assert.True(t, errors.Is(err, inner))
}
