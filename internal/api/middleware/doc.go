// Package middleware holds the gin middleware in front of the host channel:
// CORS, per-client rate limiting and request ids.
package middleware
