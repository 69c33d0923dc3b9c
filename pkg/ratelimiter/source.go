package ratelimiter

import (
	"context"

	"github.com/dmitrymomot/ratekit/pkg/timewindow"
)

// RuleSource looks up the administrative rule configured for a scope.
// Implementations return ErrRuleNotFound when no rule exists and wrap
// connectivity failures with ErrUnavailable.
type RuleSource interface {
	FetchRule(ctx context.Context, scope Scope) (*Rule, error)
}

// CountSource aggregates request counts for a scope in the given windows.
// Implementations wrap connectivity failures with ErrUnavailable.
type CountSource interface {
	CountRequests(ctx context.Context, scope Scope, keys timewindow.Keys) (*RequestCount, error)
}
