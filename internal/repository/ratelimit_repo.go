package repository

import "context"

// RateLimiter throttles outbound requests to a listing source.
type RateLimiter interface {
	// Wait blocks until a request for key is allowed or ctx is done.
	Wait(ctx context.Context, key string) error
}
