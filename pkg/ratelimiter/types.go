package ratelimiter

import "time"

// Result is the outcome of one limit check.
type Result struct {
	Limit     int       // bucket capacity
	Remaining int       // tokens left after this check; negative means denied
	ResetAt   time.Time // when the next refill lands
}

// Allowed reports whether the checked request fit within the budget.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter returns how long the caller should wait before retrying,
// or 0 when the request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Config shapes the token bucket: Capacity bounds the burst, and RefillRate
// tokens are added every RefillInterval up to that bound.
type Config struct {
	Capacity       int
	RefillRate     int
	RefillInterval time.Duration
}
