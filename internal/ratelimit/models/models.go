package models

import "time"

// Result is the outcome of a single rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is in whole seconds, at least 1 when the request was refused.
	RetryAfter int
}

// Key prefixes keep authenticated and anonymous buckets apart.
const (
	KeyPrefixHolder = "holder:"
	KeyPrefixIP     = "ip:"
)
