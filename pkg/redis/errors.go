package redis

import "errors"

var (
	// ErrFailedToParseRedisConnString indicates a malformed REDIS_URL.
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	// ErrRedisNotReady indicates the server never answered a ping within the
	// retry budget.
	ErrRedisNotReady = errors.New("redis did not become ready within the given time period")
	// ErrEmptyConnectionURL indicates a blank connection URL.
	ErrEmptyConnectionURL = errors.New("empty redis connection URL")
	// ErrHealthcheckFailed wraps a failed liveness ping.
	ErrHealthcheckFailed = errors.New("redis healthcheck failed")
)
