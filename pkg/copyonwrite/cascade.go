package copyonwrite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthshare/larder/pkg/catalog"
	"github.com/hearthshare/larder/pkg/observability"
	"github.com/hearthshare/larder/pkg/storage"
)

// CascadeResult reports a two-level cascade fork: the ids the caller should
// use from now on, and the actions actually taken in order.
type CascadeResult struct {
	NewCollectionID int64    `json:"new_collection_id"`
	NewRecipeID     int64    `json:"new_recipe_id"`
	ActionsTaken    []string `json:"actions_taken"`
}

// CascadeIngredientResult extends CascadeResult with the resolved
// ingredient for three-level cascades.
type CascadeIngredientResult struct {
	NewCollectionID int64    `json:"new_collection_id"`
	NewRecipeID     int64    `json:"new_recipe_id"`
	NewIngredientID int64    `json:"new_ingredient_id"`
	ActionsTaken    []string `json:"actions_taken"`
}

// TriggerResult is a CascadeResult with the resolved resources' URL slugs,
// for callers that need to redirect to the copies.
type TriggerResult struct {
	CascadeResult
	CollectionSlug string `json:"collection_slug"`
	RecipeSlug     string `json:"recipe_slug"`
}

// CascadeCopyWithContext ensures the household owns editable versions of
// both the collection and the recipe, forking each only if foreign,
// collection first. Either both levels resolve or neither does: the whole
// cascade runs in one transaction.
func (e *Engine) CascadeCopyWithContext(ctx context.Context, collectionID, recipeID, householdID int64) (*CascadeResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "copyonwrite.CascadeCopy")
	defer span.End()
	timer := e.startCascadeTimer("cascade_copy")
	defer timer()

	key := fmt.Sprintf("cascade:%d:%d:%d", householdID, collectionID, recipeID)
	v, err, shared := e.group.Do(key, func() (interface{}, error) {
		var res *CascadeResult
		txErr := storage.WithTx(ctx, e.db, e.txTimeout, func(tx *storage.Tx) error {
			var fnErr error
			res, fnErr = e.cascadeTx(ctx, tx, collectionID, recipeID, householdID)
			return fnErr
		})
		if txErr != nil {
			return nil, txErr
		}
		return res, nil
	})
	if shared && e.metrics != nil {
		e.metrics.ForkConflictsSuppressed.Inc()
	}
	if err != nil {
		return nil, err
	}

	res := v.(*CascadeResult)
	e.finishCascade(ctx, householdID, res.ActionsTaken)
	return res, nil
}

// CascadeCopyIngredientWithContext is the three-level cascade: collection,
// then recipe, then ingredient, each forked only if foreign, all in one
// transaction.
func (e *Engine) CascadeCopyIngredientWithContext(ctx context.Context, collectionID, recipeID, ingredientID, householdID int64) (*CascadeIngredientResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "copyonwrite.CascadeCopyIngredient")
	defer span.End()
	timer := e.startCascadeTimer("cascade_copy_ingredient")
	defer timer()

	key := fmt.Sprintf("cascade:%d:%d:%d:%d", householdID, collectionID, recipeID, ingredientID)
	v, err, shared := e.group.Do(key, func() (interface{}, error) {
		var res *CascadeIngredientResult
		txErr := storage.WithTx(ctx, e.db, e.txTimeout, func(tx *storage.Tx) error {
			cascade, fnErr := e.cascadeTx(ctx, tx, collectionID, recipeID, householdID)
			if fnErr != nil {
				return fnErr
			}

			fork, fnErr := e.copyIngredientTx(ctx, tx, ingredientID, householdID)
			if fnErr != nil {
				return fnErr
			}

			res = &CascadeIngredientResult{
				NewCollectionID: cascade.NewCollectionID,
				NewRecipeID:     cascade.NewRecipeID,
				NewIngredientID: fork.NewID,
				ActionsTaken:    cascade.ActionsTaken,
			}
			if fork.Copied {
				res.ActionsTaken = append(res.ActionsTaken, ActionIngredientCopied)
			}
			return nil
		})
		if txErr != nil {
			return nil, txErr
		}
		return res, nil
	})
	if shared && e.metrics != nil {
		e.metrics.ForkConflictsSuppressed.Inc()
	}
	if err != nil {
		return nil, err
	}

	res := v.(*CascadeIngredientResult)
	e.finishCascade(ctx, householdID, res.ActionsTaken)
	return res, nil
}

// TriggerCascadeCopyWithContext runs a two-level cascade and resolves the
// URL slugs of the resulting collection and recipe.
func (e *Engine) TriggerCascadeCopyWithContext(ctx context.Context, collectionID, recipeID, householdID int64) (*TriggerResult, error) {
	cascade, err := e.CascadeCopyWithContext(ctx, collectionID, recipeID, householdID)
	if err != nil {
		return nil, err
	}

	res := &TriggerResult{CascadeResult: *cascade}
	err = e.db.QueryRowContext(ctx,
		`SELECT url_slug FROM collections WHERE id = $1`,
		cascade.NewCollectionID).Scan(&res.CollectionSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve collection slug: %w", err)
	}
	err = e.db.QueryRowContext(ctx,
		`SELECT url_slug FROM recipes WHERE id = $1`,
		cascade.NewRecipeID).Scan(&res.RecipeSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipe slug: %w", err)
	}
	return res, nil
}

// cascadeTx is the shared core of the two- and three-level cascades. Both
// resources are loaded up front so a missing recipe fails before any
// collection writes happen.
func (e *Engine) cascadeTx(ctx context.Context, tx *storage.Tx, collectionID, recipeID, householdID int64) (*CascadeResult, error) {
	var recipeOwner int64
	err := tx.QueryRowContext(ctx,
		`SELECT household_id FROM recipes WHERE id = $1`, recipeID).Scan(&recipeOwner)
	if err == sql.ErrNoRows {
		return nil, catalog.NewNotFound(catalog.ResourceRecipe, recipeID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}

	res := &CascadeResult{ActionsTaken: []string{}}

	resolvedCollection, collectionCopied, err := e.copyCollectionTx(ctx, tx, collectionID, householdID)
	if err != nil {
		return nil, err
	}
	res.NewCollectionID = resolvedCollection
	if collectionCopied {
		res.ActionsTaken = append(res.ActionsTaken, ActionCollectionCopied, ActionUnsubscribed)
	}

	if recipeOwner == householdID {
		res.NewRecipeID = recipeID
		return res, nil
	}

	fork, err := e.copyRecipeTx(ctx, tx, recipeID, householdID)
	if err != nil {
		return nil, err
	}
	res.NewRecipeID = fork.NewID
	if fork.Copied {
		res.ActionsTaken = append(res.ActionsTaken, ActionRecipeCopied)
	}
	return res, nil
}

func (e *Engine) startCascadeTimer(operation string) func() {
	if e.metrics == nil {
		return func() {}
	}
	timer := e.metrics.CascadeDuration.WithLabelValues(operation)
	start := time.Now()
	return func() { timer.Observe(time.Since(start).Seconds()) }
}

func (e *Engine) finishCascade(ctx context.Context, householdID int64, actions []string) {
	if e.metrics != nil {
		for _, action := range actions {
			e.metrics.CascadeActionsTotal.WithLabelValues(action).Inc()
		}
	}
	if len(actions) > 0 {
		e.invalidate(ctx, householdID)
	}
}
