package copyonwrite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hearthshare/larder/pkg/access"
	"github.com/hearthshare/larder/pkg/catalog"
	"github.com/hearthshare/larder/pkg/observability"
	"github.com/hearthshare/larder/pkg/storage"
)

// Actions reported by cascade forks, in the order they are taken.
const (
	ActionCollectionCopied = "collection_copied"
	ActionUnsubscribed     = "unsubscribed_from_original"
	ActionRecipeCopied     = "recipe_copied"
	ActionIngredientCopied = "ingredient_copied"
)

// copyTitleSuffix marks forked collection titles so households can tell
// their copy apart from the original in listings.
const copyTitleSuffix = " (copy)"

// ForkResult is the outcome of a single-resource fork. When Copied is false
// the household already owned the resource and NewID is the original id.
type ForkResult struct {
	Copied bool  `json:"copied"`
	NewID  int64 `json:"new_id"`
}

// Engine performs copy-on-write forks. All mutations run inside a single
// transaction per operation; concurrent forks of the same (household,
// resource) pair are collapsed into one execution.
type Engine struct {
	db        *sql.DB
	txTimeout time.Duration
	cache     *access.Cache
	metrics   *observability.Metrics
	group     singleflight.Group
}

// NewEngine creates a copy-on-write engine. cache and metrics may be nil.
func NewEngine(db *sql.DB, txTimeout time.Duration, cache *access.Cache, metrics *observability.Metrics) *Engine {
	return &Engine{db: db, txTimeout: txTimeout, cache: cache, metrics: metrics}
}

// CopyRecipeForEdit ensures the household owns an editable version of the
// recipe. An owned recipe is returned unchanged; a foreign one is cloned
// together with its ingredient junction rows, and every reference to the
// original inside the household's own collections is repointed to the copy.
func (e *Engine) CopyRecipeForEdit(ctx context.Context, recipeID, householdID int64) (*ForkResult, error) {
	key := forkKey(householdID, catalog.ResourceRecipe, recipeID)
	res, err := e.doFork(ctx, key, func(tx *storage.Tx) (ForkResult, error) {
		return e.copyRecipeTx(ctx, tx, recipeID, householdID)
	})
	e.recordFork(catalog.ResourceRecipe, res, err)
	if err != nil {
		return nil, err
	}
	if res.Copied {
		e.invalidate(ctx, householdID)
	}
	return &res, nil
}

// CopyIngredientForEdit ensures the household owns an editable version of
// the ingredient. A foreign ingredient is cloned once per household, and
// all of the household's own recipes are repointed to the shared copy.
func (e *Engine) CopyIngredientForEdit(ctx context.Context, ingredientID, householdID int64) (*ForkResult, error) {
	key := forkKey(householdID, catalog.ResourceIngredient, ingredientID)
	res, err := e.doFork(ctx, key, func(tx *storage.Tx) (ForkResult, error) {
		return e.copyIngredientTx(ctx, tx, ingredientID, householdID)
	})
	e.recordFork(catalog.ResourceIngredient, res, err)
	if err != nil {
		return nil, err
	}
	if res.Copied {
		e.invalidate(ctx, householdID)
	}
	return &res, nil
}

// CopyCollectionOptimized forks only the collection row and its recipe
// junction rows, leaving recipe and ingredient references pointing at the
// originals. It is the fast path for title/visibility edits where the
// contained resources are untouched.
func (e *Engine) CopyCollectionOptimized(ctx context.Context, collectionID, householdID int64) (*ForkResult, error) {
	key := forkKey(householdID, catalog.ResourceCollection, collectionID)
	res, err := e.doFork(ctx, key, func(tx *storage.Tx) (ForkResult, error) {
		newID, copied, err := e.copyCollectionTx(ctx, tx, collectionID, householdID)
		return ForkResult{Copied: copied, NewID: newID}, err
	})
	e.recordFork(catalog.ResourceCollection, res, err)
	if err != nil {
		return nil, err
	}
	if res.Copied {
		e.invalidate(ctx, householdID)
	}
	return &res, nil
}

func forkKey(householdID int64, resourceType catalog.ResourceType, id int64) string {
	return fmt.Sprintf("%d:%s:%d", householdID, resourceType, id)
}

// doFork runs fn in a transaction, deduplicating concurrent calls with the
// same key. Later arrivals wait for and share the first caller's result.
func (e *Engine) doFork(ctx context.Context, key string, fn func(tx *storage.Tx) (ForkResult, error)) (ForkResult, error) {
	v, err, shared := e.group.Do(key, func() (interface{}, error) {
		var res ForkResult
		txErr := storage.WithTx(ctx, e.db, e.txTimeout, func(tx *storage.Tx) error {
			var fnErr error
			res, fnErr = fn(tx)
			return fnErr
		})
		if txErr != nil {
			return ForkResult{}, txErr
		}
		return res, nil
	})
	if shared && e.metrics != nil {
		e.metrics.ForkConflictsSuppressed.Inc()
	}
	if err != nil {
		return ForkResult{}, err
	}
	return v.(ForkResult), nil
}

// copyCollectionTx clones a foreign collection and its junction rows and
// removes any subscription to the original. Returns the resolved collection
// id and whether a copy was made.
func (e *Engine) copyCollectionTx(ctx context.Context, tx *storage.Tx, collectionID, householdID int64) (int64, bool, error) {
	var title string
	var ownerID int64
	err := tx.QueryRowContext(ctx,
		`SELECT title, household_id FROM collections WHERE id = $1`,
		collectionID).Scan(&title, &ownerID)
	if err == sql.ErrNoRows {
		return 0, false, catalog.NewNotFound(catalog.ResourceCollection, collectionID)
	} else if err != nil {
		return 0, false, fmt.Errorf("failed to load collection: %w", err)
	}

	if ownerID == householdID {
		return collectionID, false, nil
	}

	// Copies are always private so a fork never widens visibility.
	copyTitle := title + copyTitleSuffix
	var newID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO collections (title, household_id, parent_id, public, url_slug, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, NOW(), NOW())
		RETURNING id
	`, copyTitle, householdID, collectionID, newSlug(copyTitle)).Scan(&newID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to copy collection: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO collection_recipes (collection_id, recipe_id, added_at, display_order)
		SELECT $1, recipe_id, added_at, display_order
		FROM collection_recipes
		WHERE collection_id = $2
	`, newID, collectionID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to copy collection recipe links: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM collection_subscriptions WHERE household_id = $1 AND collection_id = $2`,
		householdID, collectionID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to remove subscription to original: %w", err)
	}

	return newID, true, nil
}

// copyRecipeTx clones a foreign recipe with its ingredient junction rows and
// repoints the household's own collection links from the original to the
// copy. Owned recipes are returned as-is with zero writes.
func (e *Engine) copyRecipeTx(ctx context.Context, tx *storage.Tx, recipeID, householdID int64) (ForkResult, error) {
	r := catalog.Recipe{}
	err := tx.QueryRowContext(ctx, `
		SELECT name, household_id, description, instructions,
		       prep_time_minutes, cook_time_minutes, servings
		FROM recipes WHERE id = $1
	`, recipeID).Scan(&r.Name, &r.HouseholdID, &r.Description, &r.Instructions,
		&r.PrepTimeMinutes, &r.CookTimeMinutes, &r.Servings)
	if err == sql.ErrNoRows {
		return ForkResult{}, catalog.NewNotFound(catalog.ResourceRecipe, recipeID)
	} else if err != nil {
		return ForkResult{}, fmt.Errorf("failed to load recipe: %w", err)
	}

	if r.HouseholdID == householdID {
		return ForkResult{Copied: false, NewID: recipeID}, nil
	}

	var newID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO recipes (name, household_id, parent_id, description, instructions,
		                     prep_time_minutes, cook_time_minutes, servings, url_slug,
		                     created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id
	`, r.Name, householdID, recipeID, r.Description, r.Instructions,
		r.PrepTimeMinutes, r.CookTimeMinutes, r.Servings, newSlug(r.Name)).Scan(&newID)
	if err != nil {
		return ForkResult{}, fmt.Errorf("failed to copy recipe: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recipe_ingredients (recipe_id, ingredient_id, quantity, quantity4,
		                                measure_id, preparation_id, primary_ingredient)
		SELECT $1, ingredient_id, quantity, quantity4, measure_id, preparation_id, primary_ingredient
		FROM recipe_ingredients
		WHERE recipe_id = $2
	`, newID, recipeID)
	if err != nil {
		return ForkResult{}, fmt.Errorf("failed to copy recipe ingredient links: %w", err)
	}

	// Only links in collections the household owns move to the copy;
	// other households keep seeing the original.
	_, err = tx.ExecContext(ctx, `
		UPDATE collection_recipes cr SET recipe_id = $1
		FROM collections c
		WHERE cr.collection_id = c.id
		  AND c.household_id = $2
		  AND cr.recipe_id = $3
	`, newID, householdID, recipeID)
	if err != nil {
		return ForkResult{}, fmt.Errorf("failed to repoint collection links: %w", err)
	}

	return ForkResult{Copied: true, NewID: newID}, nil
}

// copyIngredientTx clones a foreign ingredient and repoints every junction
// row of the household's own recipes to the copy. One copy per household per
// source ingredient: repointing all own-recipe references keeps later forks
// of the same ingredient no-ops.
func (e *Engine) copyIngredientTx(ctx context.Context, tx *storage.Tx, ingredientID, householdID int64) (ForkResult, error) {
	i := catalog.Ingredient{}
	err := tx.QueryRowContext(ctx,
		`SELECT name, household_id, category, store_location FROM ingredients WHERE id = $1`,
		ingredientID).Scan(&i.Name, &i.HouseholdID, &i.Category, &i.StoreLocation)
	if err == sql.ErrNoRows {
		return ForkResult{}, catalog.NewNotFound(catalog.ResourceIngredient, ingredientID)
	} else if err != nil {
		return ForkResult{}, fmt.Errorf("failed to load ingredient: %w", err)
	}

	if i.HouseholdID == householdID {
		return ForkResult{Copied: false, NewID: ingredientID}, nil
	}

	var newID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ingredients (name, household_id, parent_id, category, store_location,
		                         created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id
	`, i.Name, householdID, ingredientID, i.Category, i.StoreLocation).Scan(&newID)
	if err != nil {
		return ForkResult{}, fmt.Errorf("failed to copy ingredient: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE recipe_ingredients ri SET ingredient_id = $1
		FROM recipes r
		WHERE ri.recipe_id = r.id
		  AND r.household_id = $2
		  AND ri.ingredient_id = $3
	`, newID, householdID, ingredientID)
	if err != nil {
		return ForkResult{}, fmt.Errorf("failed to repoint recipe links: %w", err)
	}

	return ForkResult{Copied: true, NewID: newID}, nil
}

func (e *Engine) recordFork(resourceType catalog.ResourceType, res ForkResult, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "noop"
	switch {
	case err != nil:
		outcome = "error"
	case res.Copied:
		outcome = "copied"
	}
	e.metrics.ForksTotal.WithLabelValues(string(resourceType), outcome).Inc()
}

func (e *Engine) invalidate(ctx context.Context, householdID int64) {
	if e.cache != nil {
		e.cache.InvalidateHousehold(ctx, householdID)
	}
}
