package catalog

import "fmt"

// ResourceType identifies one of the three shared resource kinds. It is a
// closed enum: callers supplying a string go through ParseResourceType, and
// every query that varies by resource type dispatches on the enum rather than
// interpolating identifiers into SQL.
type ResourceType string

const (
	ResourceCollection ResourceType = "collection"
	ResourceRecipe     ResourceType = "recipe"
	ResourceIngredient ResourceType = "ingredient"
)

// Valid reports whether rt is one of the known resource types.
func (rt ResourceType) Valid() bool {
	switch rt {
	case ResourceCollection, ResourceRecipe, ResourceIngredient:
		return true
	}
	return false
}

// Table returns the fixed table name for the resource type. The mapping is
// compile-time constant; request input never reaches SQL identifiers.
func (rt ResourceType) Table() string {
	switch rt {
	case ResourceCollection:
		return "collections"
	case ResourceRecipe:
		return "recipes"
	case ResourceIngredient:
		return "ingredients"
	}
	return ""
}

func (rt ResourceType) String() string {
	return string(rt)
}

// ParseResourceType converts a caller-supplied string into a ResourceType.
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(s)
	if !rt.Valid() {
		return "", fmt.Errorf("unknown resource type: %q", s)
	}
	return rt, nil
}
