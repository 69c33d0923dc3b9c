// Package ratelimiter enforces per-scope request limits over three rolling
// calendar windows (hour, day, month).
//
// A scope is the (product, path) pair a rule is keyed by. For each request
// the engine fetches the scope's rule and its current request counts
// concurrently, both memoized through a pkg/cache backend with a short TTL,
// and rejects with *CapacityError when any configured window limit is
// reached. Counts are point-in-time aggregates over audit rows written by
// pkg/audit; their staleness is bounded by the cache TTL, which is a
// deliberate accuracy/cost tradeoff.
//
// The engine fails open: if the rule or count backend is unavailable, or a
// scope has no rule configured, the request is admitted and the condition is
// logged. Unavailability of the limiting infrastructure must never become an
// outage of the protected service. *CapacityError is the only condition that
// propagates to the caller.
package ratelimiter
