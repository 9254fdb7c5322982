// Package cleanup garbage-collects the junction rows and ingredient copies
// a deleted recipe leaves behind.
//
// Only forked ingredient copies (parent_id set) owned by the deleting
// household are candidates for removal, and only when no remaining recipe
// references them. Root ingredients are never touched: they may be shared
// with other households through public collections or the essentials
// collection, and deleting them would tear lineage out from under every
// copy that points at them.
//
// Cleanup runs in two modes: synchronously after a recipe delete, inside
// one transaction with the junction-row removal, and as a periodic sweep
// that catches copies orphaned by crashed or partial deletes.
package cleanup
