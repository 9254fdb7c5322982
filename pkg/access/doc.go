// Package access resolves what a household may do with a shared resource.
//
// # Overview
//
// Three ordered access tiers gate catalog functionality:
//
//	browsing (0) < planning (1) < ingredients (2)
//
// For a given (household, resource) pair the Resolver classifies the
// relationship as owned, subscribed, public, accessible, or none, with
// precedence owned > subscribed > public/accessible > none:
//
//   - Collections: owned directly, subscribed via a subscription row, or
//     public via the public flag.
//   - Recipes: owned directly, accessible through any collection the
//     household owns or subscribes to, or public through a public collection.
//     Reachability through multiple collections resolves to the best result.
//   - Ingredients: owned directly, accessible through an owned/subscribed
//     recipe-collection chain or through the essentials collection, or
//     public through a public chain.
//
// ValidateAccessTier returns an AccessContext when the resolved access meets
// the required tier, nil otherwise. CanEdit is true only for owned
// resources; CanSubscribe applies to collections the household could
// subscribe to but has not yet.
//
// The Checker provides the thin yes/no layer used by callers that do not
// need the full context: single-row ownership checks, reachability
// existence checks (optionally restricted to a claimed collection), a bulk
// ownership check for N ids in one round trip, and the global admin flag.
//
// # Caching
//
// An optional two-level cache (in-process LRU in front of Redis) memoizes
// resolved access contexts with a TTL. The copy-on-write engine and the
// subscription manager invalidate a household's entries after any mutation
// that could change its access.
package access
