// Package ratelimiter implements token bucket rate limiting with pluggable
// storage. The identity API mounts its Middleware in front of the credential
// endpoints (login, register, forgot-password) keyed by client IP, which
// throttles online guessing without touching the enumeration-safe error
// surface.
package ratelimiter
