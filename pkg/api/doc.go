// Package api exposes the catalog engine over HTTP.
//
// The acting household is taken from the X-Household-ID header; upstream
// auth terminates before this service and passes the resolved tenant
// through. Handlers translate the domain error taxonomy into status codes:
// not-found to 404, permission failures to 403, guard violations to 409,
// pool exhaustion to 503.
package api
