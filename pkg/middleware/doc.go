// Package middleware provides the HTTP middleware chain of the API
// server: request ID assignment, structured request logging with
// metrics, bearer-token authentication, and Redis-backed rate limiting
// shared across instances.
package middleware
