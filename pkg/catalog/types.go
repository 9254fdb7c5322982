package catalog

import (
	"time"
)

// EssentialsCollectionID is the well-known collection that grants baseline
// ingredient visibility to every household regardless of ownership.
const EssentialsCollectionID int64 = 1

// Household is a tenant; the root of ownership for all shared resources.
type Household struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Collection is an ordered set of recipes owned by one household.
type Collection struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	HouseholdID int64     `json:"household_id"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	Public      bool      `json:"public"`
	URLSlug     string    `json:"url_slug"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Recipe is a culinary entry owned by one household.
type Recipe struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	HouseholdID     int64     `json:"household_id"`
	ParentID        *int64    `json:"parent_id,omitempty"`
	Description     string    `json:"description"`
	Instructions    string    `json:"instructions"`
	PrepTimeMinutes int       `json:"prep_time_minutes"`
	CookTimeMinutes int       `json:"cook_time_minutes"`
	Servings        int       `json:"servings"`
	URLSlug         string    `json:"url_slug"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Ingredient is a catalog entry owned by one household.
type Ingredient struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	HouseholdID   int64     `json:"household_id"`
	ParentID      *int64    `json:"parent_id,omitempty"`
	Category      string    `json:"category"`
	StoreLocation string    `json:"store_location"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CollectionRecipe is the ordered many-to-many junction between collections
// and recipes.
type CollectionRecipe struct {
	CollectionID int64     `json:"collection_id"`
	RecipeID     int64     `json:"recipe_id"`
	AddedAt      time.Time `json:"added_at"`
	DisplayOrder int       `json:"display_order"`
}

// RecipeIngredient is the many-to-many junction between recipes and
// ingredients, carrying the quantity payload.
type RecipeIngredient struct {
	ID                int64   `json:"id"`
	RecipeID          int64   `json:"recipe_id"`
	IngredientID      int64   `json:"ingredient_id"`
	Quantity          float64 `json:"quantity"`
	Quantity4         float64 `json:"quantity4"`
	MeasureID         *int64  `json:"measure_id,omitempty"`
	PreparationID     *int64  `json:"preparation_id,omitempty"`
	PrimaryIngredient bool    `json:"primary_ingredient"`
}

// CollectionSubscription grants a household read/plan access to a public
// collection it does not own.
type CollectionSubscription struct {
	HouseholdID  int64     `json:"household_id"`
	CollectionID int64     `json:"collection_id"`
	SubscribedAt time.Time `json:"subscribed_at"`
}
