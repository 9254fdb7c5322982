// Package subscriptions manages a household's subscriptions to public
// collections.
//
// Subscribing grants read/plan access to a collection the household does
// not own. The guards are strict: a household cannot subscribe to its own
// collection or to a private one, and a duplicate subscribe is an
// idempotent no-op (false, not an error). The copy-on-write engine removes
// a subscription implicitly when it forks the subscribed collection, since
// the household then owns an equivalent copy.
package subscriptions
