package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthshare/larder/pkg/catalog"
)

func TestWithTxCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE recipes").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), db, time.Second, func(tx *Tx) error {
		_, execErr := tx.ExecContext(context.Background(), "UPDATE recipes SET name = $1", "x")
		return execErr
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = WithTx(context.Background(), db, time.Second, func(tx *Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxClassifiesConstraintViolations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	pqErr := &pq.Error{Code: "23505", Constraint: "idx_recipes_household_parent"}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO recipes").WillReturnError(pqErr)
	mock.ExpectRollback()

	err = WithTx(context.Background(), db, time.Second, func(tx *Tx) error {
		_, execErr := tx.ExecContext(context.Background(),
			"INSERT INTO recipes (name) VALUES ($1)", "x")
		return execErr
	})

	var cv *catalog.ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "idx_recipes_household_parent", cv.Constraint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollbackFailureSupersedesCause(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rbErr := errors.New("rollback lost connection")
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(rbErr)

	cause := errors.New("insert failed")
	err = WithTx(context.Background(), db, time.Second, func(tx *Tx) error {
		return cause
	})

	var rollback *catalog.RollbackError
	require.ErrorAs(t, err, &rollback)
	assert.Equal(t, cause, rollback.Cause)
	assert.ErrorIs(t, rollback.RollbackErr, rbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRollbackAfterCommitIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := Begin(context.Background(), db, time.Second)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	// The deferred-rollback pattern must not surface ErrTxDone.
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
