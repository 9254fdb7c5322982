package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hearthshare/larder/pkg/catalog"
)

// Resolver computes a household's access to shared resources. It is a pure
// read layer: resolution queries may run against a replica.
type Resolver struct {
	db    *sql.DB
	cache *Cache
}

// NewResolver creates a resolver over the given database handle. cache may
// be nil to disable memoization.
func NewResolver(db *sql.DB, cache *Cache) *Resolver {
	return &Resolver{db: db, cache: cache}
}

const collectionAccessQuery = `
	SELECT c.household_id, c.public,
	       EXISTS(SELECT 1 FROM collection_subscriptions s
	              WHERE s.collection_id = c.id AND s.household_id = $1) AS subscribed
	FROM collections c
	WHERE c.id = $2
`

const recipeAccessQuery = `
	SELECT r.household_id,
	       COALESCE(BOOL_OR(c.household_id = $1), FALSE) AS via_owned,
	       COALESCE(BOOL_OR(s.household_id IS NOT NULL), FALSE) AS via_subscribed,
	       COALESCE(BOOL_OR(c.public), FALSE) AS via_public
	FROM recipes r
	LEFT JOIN collection_recipes cr ON cr.recipe_id = r.id
	LEFT JOIN collections c ON c.id = cr.collection_id
	LEFT JOIN collection_subscriptions s
	       ON s.collection_id = c.id AND s.household_id = $1
	WHERE r.id = $2
	GROUP BY r.household_id
`

const ingredientAccessQuery = `
	SELECT i.household_id,
	       COALESCE(BOOL_OR(c.household_id = $1 OR s.household_id IS NOT NULL), FALSE) AS via_chain,
	       COALESCE(BOOL_OR(cr.collection_id = $3), FALSE) AS via_essentials,
	       COALESCE(BOOL_OR(c.public), FALSE) AS via_public
	FROM ingredients i
	LEFT JOIN recipe_ingredients ri ON ri.ingredient_id = i.id
	LEFT JOIN collection_recipes cr ON cr.recipe_id = ri.recipe_id
	LEFT JOIN collections c ON c.id = cr.collection_id
	LEFT JOIN collection_subscriptions s
	       ON s.collection_id = c.id AND s.household_id = $1
	WHERE i.id = $2
	GROUP BY i.household_id
`

// resolve classifies the household's access to one resource. An empty
// access type means no access; a missing row also resolves to no access.
func (r *Resolver) resolve(ctx context.Context, householdID int64, resourceType catalog.ResourceType, id int64) (AccessType, bool, error) {
	switch resourceType {
	case catalog.ResourceCollection:
		return r.resolveCollection(ctx, householdID, id)
	case catalog.ResourceRecipe:
		return r.resolveRecipe(ctx, householdID, id)
	case catalog.ResourceIngredient:
		return r.resolveIngredient(ctx, householdID, id)
	}
	return "", false, fmt.Errorf("unknown resource type: %q", resourceType)
}

func (r *Resolver) resolveCollection(ctx context.Context, householdID, collectionID int64) (AccessType, bool, error) {
	var ownerID int64
	var public, subscribed bool
	err := r.db.QueryRowContext(ctx, collectionAccessQuery, householdID, collectionID).
		Scan(&ownerID, &public, &subscribed)
	if err == sql.ErrNoRows {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to resolve collection access: %w", err)
	}

	canSubscribe := public && ownerID != householdID && !subscribed

	switch {
	case ownerID == householdID:
		return AccessOwned, false, nil
	case subscribed:
		return AccessSubscribed, false, nil
	case public:
		return AccessPublic, canSubscribe, nil
	}
	return "", false, nil
}

func (r *Resolver) resolveRecipe(ctx context.Context, householdID, recipeID int64) (AccessType, bool, error) {
	var ownerID int64
	var viaOwned, viaSubscribed, viaPublic bool
	err := r.db.QueryRowContext(ctx, recipeAccessQuery, householdID, recipeID).
		Scan(&ownerID, &viaOwned, &viaSubscribed, &viaPublic)
	if err == sql.ErrNoRows {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to resolve recipe access: %w", err)
	}

	switch {
	case ownerID == householdID:
		return AccessOwned, false, nil
	case viaOwned || viaSubscribed:
		return AccessAccessible, false, nil
	case viaPublic:
		return AccessPublic, false, nil
	}
	return "", false, nil
}

func (r *Resolver) resolveIngredient(ctx context.Context, householdID, ingredientID int64) (AccessType, bool, error) {
	var ownerID int64
	var viaChain, viaEssentials, viaPublic bool
	err := r.db.QueryRowContext(ctx, ingredientAccessQuery,
		householdID, ingredientID, catalog.EssentialsCollectionID).
		Scan(&ownerID, &viaChain, &viaEssentials, &viaPublic)
	if err == sql.ErrNoRows {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to resolve ingredient access: %w", err)
	}

	switch {
	case ownerID == householdID:
		return AccessOwned, false, nil
	case viaChain || viaEssentials:
		return AccessAccessible, false, nil
	case viaPublic:
		return AccessPublic, false, nil
	}
	return "", false, nil
}

// resolveContext resolves the full AccessContext, consulting the cache
// first. Returns nil when the household has no access at all.
func (r *Resolver) resolveContext(ctx context.Context, householdID int64, resourceType catalog.ResourceType, id int64) (*AccessContext, error) {
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, householdID, resourceType, id); ok {
			return cached, nil
		}
	}

	accessType, canSubscribe, err := r.resolve(ctx, householdID, resourceType, id)
	if err != nil {
		return nil, err
	}
	if accessType == "" {
		return nil, nil
	}

	ac := &AccessContext{
		Tier:         accessType.TierIndex(),
		HouseholdID:  householdID,
		AccessType:   accessType,
		CanEdit:      accessType == AccessOwned,
		CanSubscribe: canSubscribe,
	}

	if r.cache != nil {
		r.cache.Set(ctx, householdID, resourceType, id, ac)
	}

	return ac, nil
}

// ValidateAccessTier resolves the household's access to the resource and
// returns an AccessContext when it meets requiredTier, nil otherwise.
func (r *Resolver) ValidateAccessTier(ctx context.Context, householdID int64, resourceType catalog.ResourceType, id int64, requiredTier Tier) (*AccessContext, error) {
	ac, err := r.resolveContext(ctx, householdID, resourceType, id)
	if err != nil {
		return nil, err
	}
	if ac == nil || ac.Tier < requiredTier {
		return nil, nil
	}
	return ac, nil
}

// ValidateAccessTiersBulk resolves a list of tier requests and returns a map
// keyed "{type}_{id}". Entries that fail the tier requirement are absent.
func (r *Resolver) ValidateAccessTiersBulk(ctx context.Context, householdID int64, requests []TierRequest) (map[string]*AccessContext, error) {
	results := make(map[string]*AccessContext, len(requests))
	for _, req := range requests {
		if !req.Type.Valid() {
			return nil, fmt.Errorf("unknown resource type: %q", req.Type)
		}
		ac, err := r.ValidateAccessTier(ctx, householdID, req.Type, req.ID, req.RequiredTier)
		if err != nil {
			return nil, err
		}
		if ac != nil {
			results[req.Key()] = ac
		}
	}
	return results, nil
}

// GetAccessInfo returns the caller-facing access summary, or nil when the
// household has no access.
func (r *Resolver) GetAccessInfo(ctx context.Context, householdID int64, resourceType catalog.ResourceType, id int64) (*AccessInfo, error) {
	ac, err := r.resolveContext(ctx, householdID, resourceType, id)
	if err != nil || ac == nil {
		return nil, err
	}
	return &AccessInfo{
		AccessType:   ac.AccessType,
		CanEdit:      ac.CanEdit,
		CanSubscribe: ac.CanSubscribe,
	}, nil
}

// ValidateAction reports whether the household may perform the action on
// the resource.
func (r *Resolver) ValidateAction(ctx context.Context, householdID int64, resourceType catalog.ResourceType, id int64, action Action) (bool, error) {
	ac, err := r.resolveContext(ctx, householdID, resourceType, id)
	if err != nil {
		return false, err
	}
	if ac == nil {
		return false, nil
	}

	switch action {
	case ActionView, ActionCopy:
		return true, nil
	case ActionEdit:
		return ac.CanEdit, nil
	case ActionSubscribe:
		return resourceType == catalog.ResourceCollection && ac.CanSubscribe, nil
	}
	return false, fmt.Errorf("unknown action: %q", action)
}
