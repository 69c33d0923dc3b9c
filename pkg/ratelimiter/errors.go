package ratelimiter

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScope indicates a malformed scope. Surfaced immediately,
	// never retried.
	ErrInvalidScope = errors.New("invalid rate limit scope")

	// ErrRuleNotFound indicates no rule is configured for a scope. The
	// engine treats it as a configuration gap: logged, then admitted.
	ErrRuleNotFound = errors.New("rate limit rule not found")

	// ErrUnavailable indicates the rule or count backend is unreachable or
	// timed out. The engine fails open on it.
	ErrUnavailable = errors.New("rate limit backend unavailable")
)

// unavailable tags driver-level failures as transient.
func unavailable(err error) error {
	return errors.Join(ErrUnavailable, err)
}

// CapacityError is the rejection signal: a configured limit was reached for
// the scope's window. It translates to a 429 at the HTTP boundary.
type CapacityError struct {
	Scope  Scope
	Window string // WindowHour, WindowDay, or WindowMonth
	Limit  int64
	Count  int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s limit exceeded for %s: %d of %d", e.Window, e.Scope, e.Count, e.Limit)
}
