package access

import (
	"fmt"

	"github.com/hearthshare/larder/pkg/catalog"
)

// Tier is an ordered capability level a resource access must meet or exceed.
type Tier int

const (
	TierBrowsing Tier = iota
	TierPlanning
	TierIngredients
)

func (t Tier) String() string {
	switch t {
	case TierBrowsing:
		return "browsing"
	case TierPlanning:
		return "planning"
	case TierIngredients:
		return "ingredients"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier converts a caller-supplied string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "browsing":
		return TierBrowsing, nil
	case "planning":
		return TierPlanning, nil
	case "ingredients":
		return TierIngredients, nil
	}
	return 0, fmt.Errorf("unknown access tier: %q", s)
}

// AccessType classifies a household's relationship to a resource.
type AccessType string

const (
	AccessOwned      AccessType = "owned"
	AccessSubscribed AccessType = "subscribed"
	AccessPublic     AccessType = "public"
	AccessAccessible AccessType = "accessible"
)

// TierIndex maps an access type onto the tier ladder: public/accessible
// satisfy browsing, subscribed satisfies planning, owned satisfies
// ingredients.
func (a AccessType) TierIndex() Tier {
	switch a {
	case AccessOwned:
		return TierIngredients
	case AccessSubscribed:
		return TierPlanning
	default:
		return TierBrowsing
	}
}

// AccessContext is the resolved relationship between a household and a
// resource, with derived capability flags.
type AccessContext struct {
	Tier         Tier       `json:"tier"`
	HouseholdID  int64      `json:"household_id"`
	AccessType   AccessType `json:"access_type"`
	CanEdit      bool       `json:"can_edit"`
	CanSubscribe bool       `json:"can_subscribe"`
}

// AccessInfo is the caller-facing summary of an access resolution.
type AccessInfo struct {
	AccessType   AccessType `json:"access_type"`
	CanEdit      bool       `json:"can_edit"`
	CanSubscribe bool       `json:"can_subscribe"`
}

// Action is a capability a caller wants validated against a resource.
type Action string

const (
	ActionView      Action = "view"
	ActionEdit      Action = "edit"
	ActionSubscribe Action = "subscribe"
	ActionCopy      Action = "copy"
)

// TierRequest is one entry of a bulk access resolution.
type TierRequest struct {
	Type         catalog.ResourceType `json:"type"`
	ID           int64                `json:"id"`
	RequiredTier Tier                 `json:"required_tier"`
}

// Key returns the map key for a bulk resolution result.
func (r TierRequest) Key() string {
	return fmt.Sprintf("%s_%d", r.Type, r.ID)
}
