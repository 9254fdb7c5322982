package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hearthshare/larder/pkg/catalog"
)

// Checker answers yes/no permission questions without materializing a full
// access context.
type Checker struct {
	db *sql.DB
}

// NewChecker creates a checker over the given database handle.
func NewChecker(db *sql.DB) *Checker {
	return &Checker{db: db}
}

const (
	ownsCollectionQuery = `SELECT household_id FROM collections WHERE id = $1`
	ownsRecipeQuery     = `SELECT household_id FROM recipes WHERE id = $1`
	ownsIngredientQuery = `SELECT household_id FROM ingredients WHERE id = $1`

	bulkOwnsCollectionsQuery = `SELECT id, household_id = $1 FROM collections WHERE id = ANY($2)`
	bulkOwnsRecipesQuery     = `SELECT id, household_id = $1 FROM recipes WHERE id = ANY($2)`
	bulkOwnsIngredientsQuery = `SELECT id, household_id = $1 FROM ingredients WHERE id = ANY($2)`

	recipeReachableQuery = `
		SELECT EXISTS(SELECT 1 FROM recipes r WHERE r.id = $2 AND r.household_id = $1)
		    OR EXISTS(
		       SELECT 1 FROM collection_recipes cr
		       JOIN collections c ON c.id = cr.collection_id
		       LEFT JOIN collection_subscriptions s
		              ON s.collection_id = c.id AND s.household_id = $1
		       WHERE cr.recipe_id = $2
		         AND (c.household_id = $1 OR s.household_id IS NOT NULL OR c.public))
	`

	recipeReachableInCollectionQuery = `
		SELECT (EXISTS(SELECT 1 FROM recipes r WHERE r.id = $2 AND r.household_id = $1)
		   AND EXISTS(
		       SELECT 1 FROM collection_recipes cr WHERE cr.recipe_id = $2 AND cr.collection_id = $3))
		    OR EXISTS(
		       SELECT 1 FROM collection_recipes cr
		       JOIN collections c ON c.id = cr.collection_id
		       LEFT JOIN collection_subscriptions s
		              ON s.collection_id = c.id AND s.household_id = $1
		       WHERE cr.recipe_id = $2 AND cr.collection_id = $3
		         AND (c.household_id = $1 OR s.household_id IS NOT NULL OR c.public))
	`

	ingredientReachableQuery = `
		SELECT EXISTS(SELECT 1 FROM ingredients i WHERE i.id = $2 AND i.household_id = $1)
		    OR EXISTS(
		       SELECT 1 FROM recipe_ingredients ri
		       JOIN collection_recipes cr ON cr.recipe_id = ri.recipe_id
		       JOIN collections c ON c.id = cr.collection_id
		       LEFT JOIN collection_subscriptions s
		              ON s.collection_id = c.id AND s.household_id = $1
		       WHERE ri.ingredient_id = $2
		         AND (c.household_id = $1 OR s.household_id IS NOT NULL OR c.public
		              OR cr.collection_id = $3))
	`

	ingredientReachableInCollectionQuery = `
		SELECT EXISTS(SELECT 1 FROM ingredients i WHERE i.id = $2 AND i.household_id = $1)
		    OR EXISTS(
		       SELECT 1 FROM recipe_ingredients ri
		       JOIN collection_recipes cr ON cr.recipe_id = ri.recipe_id
		       JOIN collections c ON c.id = cr.collection_id
		       LEFT JOIN collection_subscriptions s
		              ON s.collection_id = c.id AND s.household_id = $1
		       WHERE ri.ingredient_id = $2 AND cr.collection_id = $4
		         AND (c.household_id = $1 OR s.household_id IS NOT NULL OR c.public
		              OR cr.collection_id = $3))
	`
)

func ownershipQuery(resourceType catalog.ResourceType) (string, error) {
	switch resourceType {
	case catalog.ResourceCollection:
		return ownsCollectionQuery, nil
	case catalog.ResourceRecipe:
		return ownsRecipeQuery, nil
	case catalog.ResourceIngredient:
		return ownsIngredientQuery, nil
	}
	return "", fmt.Errorf("unknown resource type: %q", resourceType)
}

func bulkOwnershipQuery(resourceType catalog.ResourceType) (string, error) {
	switch resourceType {
	case catalog.ResourceCollection:
		return bulkOwnsCollectionsQuery, nil
	case catalog.ResourceRecipe:
		return bulkOwnsRecipesQuery, nil
	case catalog.ResourceIngredient:
		return bulkOwnsIngredientsQuery, nil
	}
	return "", fmt.Errorf("unknown resource type: %q", resourceType)
}

// CanEditResource reports whether the household owns the resource. It is a
// single-row ownership check, independent of the tier model. A missing
// resource is simply not editable.
func (c *Checker) CanEditResource(ctx context.Context, householdID int64, resourceType catalog.ResourceType, id int64) (bool, error) {
	query, err := ownershipQuery(resourceType)
	if err != nil {
		return false, err
	}

	var ownerID int64
	err = c.db.QueryRowContext(ctx, query, id).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check ownership: %w", err)
	}
	return ownerID == householdID, nil
}

// CanEditMultipleResources checks ownership for N ids in one round trip.
// Ids not present in the result default to false: not found is never an
// error here.
func (c *Checker) CanEditMultipleResources(ctx context.Context, householdID int64, resourceType catalog.ResourceType, ids []int64) (map[int64]bool, error) {
	results := make(map[int64]bool, len(ids))
	for _, id := range ids {
		results[id] = false
	}
	if len(ids) == 0 {
		return results, nil
	}

	query, err := bulkOwnershipQuery(resourceType)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, query, householdID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to check bulk ownership: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var editable bool
		if err := rows.Scan(&id, &editable); err != nil {
			return nil, fmt.Errorf("failed to scan ownership row: %w", err)
		}
		results[id] = editable
	}
	return results, rows.Err()
}

// CanAccessRecipe reports whether the recipe exists and is reachable by the
// household. When collectionID is non-nil the reachability join is
// restricted to that collection, so a caller cannot smuggle a recipe id
// from outside its claimed collection context.
func (c *Checker) CanAccessRecipe(ctx context.Context, householdID, recipeID int64, collectionID *int64) (bool, error) {
	var reachable bool
	var err error
	if collectionID != nil {
		err = c.db.QueryRowContext(ctx, recipeReachableInCollectionQuery,
			householdID, recipeID, *collectionID).Scan(&reachable)
	} else {
		err = c.db.QueryRowContext(ctx, recipeReachableQuery,
			householdID, recipeID).Scan(&reachable)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check recipe access: %w", err)
	}
	return reachable, nil
}

// CanAccessIngredient reports whether the ingredient exists and is
// reachable by the household, via ownership, an owned/subscribed/public
// chain, or the essentials collection. A non-nil collectionID restricts the
// chain to that collection.
func (c *Checker) CanAccessIngredient(ctx context.Context, householdID, ingredientID int64, collectionID *int64) (bool, error) {
	var reachable bool
	var err error
	if collectionID != nil {
		err = c.db.QueryRowContext(ctx, ingredientReachableInCollectionQuery,
			householdID, ingredientID, catalog.EssentialsCollectionID, *collectionID).Scan(&reachable)
	} else {
		err = c.db.QueryRowContext(ctx, ingredientReachableQuery,
			householdID, ingredientID, catalog.EssentialsCollectionID).Scan(&reachable)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ingredient access: %w", err)
	}
	return reachable, nil
}

// IsAdmin reports the household-independent global admin flag for a user.
func (c *Checker) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var isAdmin bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM admins WHERE user_id = $1)`, userID).Scan(&isAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to check admin flag: %w", err)
	}
	return isAdmin, nil
}
