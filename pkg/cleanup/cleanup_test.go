package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCleanerMock(t *testing.T) (*Cleaner, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewCleaner(db, time.Second, nil, nil), mock, func() { db.Close() }
}

func TestDeleteRecipeIngredients(t *testing.T) {
	cleaner, mock, closeFn := newCleanerMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recipe_ingredients").
		WithArgs(int64(20)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	deleted, err := cleaner.DeleteRecipeIngredients(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRecipeIngredientsNoRows(t *testing.T) {
	cleaner, mock, closeFn := newCleanerMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recipe_ingredients").
		WithArgs(int64(20)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	deleted, err := cleaner.DeleteRecipeIngredients(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestDeleteOrphanedIngredients(t *testing.T) {
	cleaner, mock, closeFn := newCleanerMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM ingredients").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(130).AddRow(131))
	mock.ExpectCommit()

	orphans, err := cleaner.DeleteOrphanedIngredients(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{130, 131}, orphans)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrphanedIngredientsExcludesRecipe(t *testing.T) {
	cleaner, mock, closeFn := newCleanerMock(t)
	defer closeFn()

	// References from the excluded recipe must not keep a copy alive.
	excludeRecipe := int64(20)
	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM ingredients").
		WithArgs(int64(1), excludeRecipe).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(130))
	mock.ExpectCommit()

	orphans, err := cleaner.DeleteOrphanedIngredients(context.Background(), 1, &excludeRecipe)
	require.NoError(t, err)
	assert.Equal(t, []int64{130}, orphans)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrphanedIngredientsNoneFound(t *testing.T) {
	cleaner, mock, closeFn := newCleanerMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM ingredients").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	orphans, err := cleaner.DeleteOrphanedIngredients(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestPerformCompleteCleanupRunsBothStepsInOneTransaction(t *testing.T) {
	cleaner, mock, closeFn := newCleanerMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recipe_ingredients").
		WithArgs(int64(20)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("DELETE FROM ingredients").
		WithArgs(int64(1), int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(130))
	mock.ExpectCommit()

	res, err := cleaner.PerformCompleteCleanupAfterRecipeDelete(context.Background(), 20, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.JunctionRowsDeleted)
	assert.Equal(t, []int64{130}, res.OrphanedIngredientIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformCompleteCleanupRollsBackJunctionDeleteOnOrphanFailure(t *testing.T) {
	cleaner, mock, closeFn := newCleanerMock(t)
	defer closeFn()

	boom := errors.New("lock timeout")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM recipe_ingredients").
		WithArgs(int64(20)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("DELETE FROM ingredients").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := cleaner.PerformCompleteCleanupAfterRecipeDelete(context.Background(), 20, 1)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepOrphanedIngredients(t *testing.T) {
	cleaner, mock, closeFn := newCleanerMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM ingredients").
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	deleted, err := cleaner.SweepOrphanedIngredients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
