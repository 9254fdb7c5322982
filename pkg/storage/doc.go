// Package storage manages PostgreSQL connections and schema migrations for
// the Larder service.
//
// # Overview
//
// The ConnectionManager owns a primary connection pool plus optional read
// replicas with round-robin selection. It is constructed explicitly and
// passed into each service; there is no package-level database handle.
//
// Writes (and every transaction) go through Primary(); read-only resolution
// queries may use Replica(), which falls back to the primary when no
// replicas are configured.
//
// # Migrations
//
// The full catalog schema lives in versioned migrations applied by
// RunMigrations. Each migration runs in its own transaction and is recorded
// in the larder_migrations table, so startup is idempotent.
//
// # Transactions
//
// Begin acquires a transaction from the pool with a bounded wait. When the
// pool cannot produce a connection inside the timeout the caller receives a
// catalog.PoolExhaustionError before any transaction state exists.
package storage
