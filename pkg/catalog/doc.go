// Package catalog defines the shared domain model for the Larder service.
//
// # Overview
//
// Larder lets many independent households share a catalog of collections,
// recipes, and ingredients. Every shared resource carries exactly one owning
// household (household_id) and an optional parent_id pointing at the resource
// it was copied from. The parent_id edges form a forest: no cycles, at most
// one parent per row.
//
// # Ownership and lineage
//
//   - household_id is never null; it is the unit of data ownership.
//   - parent_id is set only on rows created by the copy-on-write engine.
//   - A household never holds two copies of the same source resource; the
//     engine treats "already owned" as a no-op and the schema backs this with
//     unique partial indexes on (household_id, parent_id).
//
// # Error taxonomy
//
// All storage-facing packages surface failures through the types in this
// package:
//
//   - NotFoundError: a referenced collection/recipe/ingredient does not exist
//   - ConstraintViolationError: foreign-key or unique violations from postgres
//   - PoolExhaustionError: no connection available before a transaction began
//   - RollbackError: rollback itself failed after an earlier failure
//
// # Related Packages
//
//   - pkg/access: access-tier resolution and permission checks
//   - pkg/copyonwrite: the cascading fork engine
//   - pkg/subscriptions: collection subscriptions
//   - pkg/cleanup: orphaned-ingredient garbage collection
package catalog
