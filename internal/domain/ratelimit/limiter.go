package ratelimit

import "context"

// Limiter decides whether an event identified by key fits its budget.
//
// Implementations use GCRA (Generic Cell Rate Algorithm), which spreads
// admitted events evenly instead of resetting at window edges.
type Limiter interface {
	// Allow consumes one unit of key's budget under cfg if available.
	Allow(ctx context.Context, key string, cfg Config) (Result, error)

	// Forget drops all state held for key.
	Forget(key string)
}
