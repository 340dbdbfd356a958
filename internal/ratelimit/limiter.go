// Package ratelimit provides a process-local request counter used as a
// load-shedding aid in front of the store-backed security invariants.
//
// The in-memory implementation is only a correctness aid under a
// single-instance deployment: under horizontal scaling its windows
// degrade to per-instance best effort and it must be replaced by a
// shared counting store behind the same Limiter interface.
package ratelimit

import (
	"context"
	"time"
)

// Config describes one rate-limit policy tier.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// Result is the outcome of a limiter check. ResetAt is the wall-clock
// time at which the window reopens and the caller may retry.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per identifier within fixed windows. Handlers
// typically apply two limiters in series: one keyed by actor and one
// keyed by network origin.
type Limiter interface {
	Check(ctx context.Context, identifier string, cfg Config) (Result, error)
}
