// Package copyonwrite implements the cascading fork engine.
//
// # Overview
//
// A household may freely read shared resources, but the moment it wants to
// edit one it does not own, the engine transparently creates a private copy
// (household_id = the editor, parent_id = the original) and repoints the
// household's own references to it. Edits therefore never mutate another
// household's data.
//
// Forks cascade along the containment chain. Editing an ingredient inside a
// recipe inside a collection may require forking zero, one, two, or three
// levels, each only if not already owned, always in parent-before-child
// order (collection, then recipe, then ingredient), and always inside a
// single transaction: any failure rolls back every step.
//
// # Idempotence
//
// Forking a resource the household already owns is a no-op that returns the
// original id. A household never accumulates duplicate copies of the same
// source: concurrent forks of the same (household, resource) pair are
// collapsed through singleflight, and the schema backs the invariant with
// unique partial indexes on (household_id, parent_id).
//
// # Actions
//
// Cascade results report exactly what was forked:
//
//	collection_copied            the collection was foreign and was cloned
//	unsubscribed_from_original   always accompanies collection_copied
//	recipe_copied                the recipe was foreign and was cloned
//	ingredient_copied            the ingredient was foreign and was cloned
//
// Owned levels are reused unchanged and produce no action.
package copyonwrite
