// Package circuitbreaker wraps sony/gobreaker behind a named-breaker Manager
// so callers of remote collaborators can fail fast while they are unhealthy.
package circuitbreaker
