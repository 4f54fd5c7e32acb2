// Package ratelimit defines the request budget applied to socket connections.
package ratelimit

import (
	"fmt"
	"time"
)

// Config defines a rate limit: Rate events per Period, with up to Burst
// events admitted at once.
type Config struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// Enabled reports whether c limits anything.
func (c Config) Enabled() bool {
	return c.Rate > 0 && c.Period > 0
}

// Result is the outcome of a single Allow check.
type Result struct {
	Allowed bool

	// Remaining is the number of events still admitted right now.
	Remaining int

	// RetryAfter is how long until the next event is admitted.
	// Zero when Allowed.
	RetryAfter time.Duration

	// ResetAfter is how long until the budget is fully restored.
	ResetAfter time.Duration
}

// KeyType identifies what a limit key is scoped to.
type KeyType string

const (
	// KeyTypeConnection scopes a budget to one socket connection.
	KeyTypeConnection KeyType = "conn"

	// KeyTypeAddress scopes a budget to a remote address.
	KeyTypeAddress KeyType = "addr"
)

const keyPrefix = "ratelimit"

// FormatKey returns "ratelimit:{type}:{value}".
func FormatKey(keyType KeyType, value string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, keyType, value)
}
