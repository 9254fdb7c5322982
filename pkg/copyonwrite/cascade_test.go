package copyonwrite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthshare/larder/pkg/catalog"
)

const (
	collectionID = int64(10)
	recipeID     = int64(20)
	ingredientID = int64(30)

	copiedCollectionID = int64(110)
	copiedRecipeID     = int64(120)
	copiedIngredientID = int64(130)
)

func expectCollectionLoad(mock sqlmock.Sqlmock, ownerID int64) {
	mock.ExpectQuery("SELECT title, household_id FROM collections").
		WithArgs(collectionID).
		WillReturnRows(sqlmock.NewRows([]string{"title", "household_id"}).
			AddRow("Weeknight Dinners", ownerID))
}

func expectCollectionCopy(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("INSERT INTO collections").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(copiedCollectionID))
	mock.ExpectExec("INSERT INTO collection_recipes").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("DELETE FROM collection_subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

// expectCascade sets up the full two-level expectation sequence for the
// given ownership combination.
func expectCascade(mock sqlmock.Sqlmock, collectionOwned, recipeOwned bool) {
	recipeOwner := foreignHousehold
	if recipeOwned {
		recipeOwner = actorHousehold
	}
	collectionOwner := foreignHousehold
	if collectionOwned {
		collectionOwner = actorHousehold
	}

	mock.ExpectQuery("SELECT household_id FROM recipes").
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"household_id"}).AddRow(recipeOwner))
	expectCollectionLoad(mock, collectionOwner)
	if !collectionOwned {
		expectCollectionCopy(mock)
	}
	if !recipeOwned {
		expectRecipeLoad(mock, recipeID, foreignHousehold)
		expectRecipeCopy(mock, copiedRecipeID)
	}
}

func TestCascadeCopyBothForeign(t *testing.T) {
	engine, mock, closeFn := newEngineMock(t)
	defer closeFn()

	mock.ExpectBegin()
	expectCascade(mock, false, false)
	mock.ExpectCommit()

	res, err := engine.CascadeCopyWithContext(context.Background(),
		collectionID, recipeID, actorHousehold)
	require.NoError(t, err)
	assert.Equal(t, copiedCollectionID, res.NewCollectionID)
	assert.Equal(t, copiedRecipeID, res.NewRecipeID)
	assert.Equal(t, []string{
		ActionCollectionCopied, ActionUnsubscribed, ActionRecipeCopied,
	}, res.ActionsTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCascadeCopyBothOwnedIsNoOp(t *testing.T) {
	engine, mock, closeFn := newEngineMock(t)
	defer closeFn()

	mock.ExpectBegin()
	expectCascade(mock, true, true)
	mock.ExpectCommit()

	res, err := engine.CascadeCopyWithContext(context.Background(),
		collectionID, recipeID, actorHousehold)
	require.NoError(t, err)
	assert.Equal(t, collectionID, res.NewCollectionID)
	assert.Equal(t, recipeID, res.NewRecipeID)
	assert.Empty(t, res.ActionsTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCascadeCopyUnsubscribeAccompaniesCollectionCopy(t *testing.T) {
	engine, mock, closeFn := newEngineMock(t)
	defer closeFn()

	// Foreign collection, owned recipe: collection forked, recipe reused.
	mock.ExpectBegin()
	expectCascade(mock, false, true)
	mock.ExpectCommit()

	res, err := engine.CascadeCopyWithContext(context.Background(),
		collectionID, recipeID, actorHousehold)
	require.NoError(t, err)
	assert.Equal(t, []string{ActionCollectionCopied, ActionUnsubscribed}, res.ActionsTaken)
	assert.Equal(t, recipeID, res.NewRecipeID)
}

func TestCascadeCopyOwnedCollectionForeignRecipe(t *testing.T) {
	engine, mock, closeFn := newEngineMock(t)
	defer closeFn()

	mock.ExpectBegin()
	expectCascade(mock, true, false)
	mock.ExpectCommit()

	res, err := engine.CascadeCopyWithContext(context.Background(),
		collectionID, recipeID, actorHousehold)
	require.NoError(t, err)
	assert.Equal(t, collectionID, res.NewCollectionID)
	assert.Equal(t, copiedRecipeID, res.NewRecipeID)
	assert.Equal(t, []string{ActionRecipeCopied}, res.ActionsTaken)
}

func TestCascadeCopyMissingRecipeFailsBeforeAnyWrite(t *testing.T) {
	engine, mock, closeFn := newEngineMock(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT household_id FROM recipes").
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"household_id"}))
	mock.ExpectRollback()

	_, err := engine.CascadeCopyWithContext(context.Background(),
		collectionID, recipeID, actorHousehold)
	assert.True(t, catalog.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCascadeCopyRollsBackCollectionCopyOnRecipeFailure(t *testing.T) {
	engine, mock, closeFn := newEngineMock(t)
	defer closeFn()

	boom := errors.New("deadlock detected")
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT household_id FROM recipes").
		WithArgs(recipeID).
		WillReturnRows(sqlmock.NewRows([]string{"household_id"}).AddRow(foreignHousehold))
	expectCollectionLoad(mock, foreignHousehold)
	expectCollectionCopy(mock)
	expectRecipeLoad(mock, recipeID, foreignHousehold)
	mock.ExpectQuery("INSERT INTO recipes").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := engine.CascadeCopyWithContext(context.Background(),
		collectionID, recipeID, actorHousehold)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCascadeCopyIngredientTruthTable walks all eight ownership
// combinations and checks the resolved ids and the exact action sequence.
func TestCascadeCopyIngredientTruthTable(t *testing.T) {
	cases := []struct {
		name            string
		collectionOwned bool
		recipeOwned     bool
		ingredientOwned bool
		wantCollection  int64
		wantRecipe      int64
		wantIngredient  int64
		wantActions     []string
	}{
		{
			name:            "all owned",
			collectionOwned: true, recipeOwned: true, ingredientOwned: true,
			wantCollection: collectionID, wantRecipe: recipeID, wantIngredient: ingredientID,
			wantActions: []string{},
		},
		{
			name:            "foreign ingredient only",
			collectionOwned: true, recipeOwned: true, ingredientOwned: false,
			wantCollection: collectionID, wantRecipe: recipeID, wantIngredient: copiedIngredientID,
			wantActions: []string{ActionIngredientCopied},
		},
		{
			name:            "foreign recipe only",
			collectionOwned: true, recipeOwned: false, ingredientOwned: true,
			wantCollection: collectionID, wantRecipe: copiedRecipeID, wantIngredient: ingredientID,
			wantActions: []string{ActionRecipeCopied},
		},
		{
			name:            "foreign recipe and ingredient",
			collectionOwned: true, recipeOwned: false, ingredientOwned: false,
			wantCollection: collectionID, wantRecipe: copiedRecipeID, wantIngredient: copiedIngredientID,
			wantActions: []string{ActionRecipeCopied, ActionIngredientCopied},
		},
		{
			name:            "foreign collection only",
			collectionOwned: false, recipeOwned: true, ingredientOwned: true,
			wantCollection: copiedCollectionID, wantRecipe: recipeID, wantIngredient: ingredientID,
			wantActions: []string{ActionCollectionCopied, ActionUnsubscribed},
		},
		{
			name:            "foreign collection and ingredient",
			collectionOwned: false, recipeOwned: true, ingredientOwned: false,
			wantCollection: copiedCollectionID, wantRecipe: recipeID, wantIngredient: copiedIngredientID,
			wantActions: []string{ActionCollectionCopied, ActionUnsubscribed, ActionIngredientCopied},
		},
		{
			name:            "foreign collection and recipe",
			collectionOwned: false, recipeOwned: false, ingredientOwned: true,
			wantCollection: copiedCollectionID, wantRecipe: copiedRecipeID, wantIngredient: ingredientID,
			wantActions: []string{ActionCollectionCopied, ActionUnsubscribed, ActionRecipeCopied},
		},
		{
			name:            "all foreign",
			collectionOwned: false, recipeOwned: false, ingredientOwned: false,
			wantCollection: copiedCollectionID, wantRecipe: copiedRecipeID, wantIngredient: copiedIngredientID,
			wantActions: []string{
				ActionCollectionCopied, ActionUnsubscribed,
				ActionRecipeCopied, ActionIngredientCopied,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, mock, closeFn := newEngineMock(t)
			defer closeFn()

			ingredientOwner := foreignHousehold
			if tc.ingredientOwned {
				ingredientOwner = actorHousehold
			}

			mock.ExpectBegin()
			expectCascade(mock, tc.collectionOwned, tc.recipeOwned)
			expectIngredientLoad(mock, ingredientID, ingredientOwner)
			if !tc.ingredientOwned {
				expectIngredientCopy(mock, copiedIngredientID)
			}
			mock.ExpectCommit()

			res, err := engine.CascadeCopyIngredientWithContext(context.Background(),
				collectionID, recipeID, ingredientID, actorHousehold)
			require.NoError(t, err)
			assert.Equal(t, tc.wantCollection, res.NewCollectionID)
			assert.Equal(t, tc.wantRecipe, res.NewRecipeID)
			assert.Equal(t, tc.wantIngredient, res.NewIngredientID)
			assert.Equal(t, tc.wantActions, res.ActionsTaken)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCascadeCopyIngredientRollsBackEverythingOnIngredientFailure(t *testing.T) {
	engine, mock, closeFn := newEngineMock(t)
	defer closeFn()

	boom := errors.New("unique violation")
	mock.ExpectBegin()
	expectCascade(mock, false, false)
	expectIngredientLoad(mock, ingredientID, foreignHousehold)
	mock.ExpectQuery("INSERT INTO ingredients").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := engine.CascadeCopyIngredientWithContext(context.Background(),
		collectionID, recipeID, ingredientID, actorHousehold)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriggerCascadeCopyReturnsSlugs(t *testing.T) {
	engine, mock, closeFn := newEngineMock(t)
	defer closeFn()

	mock.ExpectBegin()
	expectCascade(mock, false, false)
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT url_slug FROM collections").
		WithArgs(copiedCollectionID).
		WillReturnRows(sqlmock.NewRows([]string{"url_slug"}).
			AddRow("weeknight-dinners-copy-a1b2c3d4"))
	mock.ExpectQuery("SELECT url_slug FROM recipes").
		WithArgs(copiedRecipeID).
		WillReturnRows(sqlmock.NewRows([]string{"url_slug"}).AddRow("lasagna-e5f6a7b8"))

	res, err := engine.TriggerCascadeCopyWithContext(context.Background(),
		collectionID, recipeID, actorHousehold)
	require.NoError(t, err)
	assert.Equal(t, "weeknight-dinners-copy-a1b2c3d4", res.CollectionSlug)
	assert.Equal(t, "lasagna-e5f6a7b8", res.RecipeSlug)
	assert.Equal(t, copiedCollectionID, res.NewCollectionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
