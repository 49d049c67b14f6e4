package rate

import "errors"

var (
	// ErrRateLimited is returned when a counter exceeds its policy budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is returned when the counter backend cannot be
	// reached. Callers decide whether to fail open or closed.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
