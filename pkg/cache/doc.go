// Package cache provides a key/value/TTL cache behind a single contract with
// three interchangeable backends: a bounded in-process map, a PostgreSQL
// table, and a Redis keyspace.
//
// All backends share the same semantics: a missing or expired key is reported
// as ErrNotFound (never as a nil value), nil values are rejected with
// ErrNilValue so "not found" and "cached empty" stay distinguishable, and a
// Set on an existing key overwrites it. Values are JSON-encoded at the
// boundary so every backend stores the same representation.
//
// Backend selection happens at construction time:
//
//	mem := cache.NewMemory(1000)
//	db := cache.NewPostgres(pool)
//	rds := cache.NewRedis(client, cache.WithRedisPrefix("app:cache:"))
//
// The in-process backend enforces TTLs lazily at read time and evicts the
// oldest-inserted entry when full. The PostgreSQL backend stores a SHA-256
// hash of the key and checks the stored expiry at read time. The Redis
// backend delegates expiry to the store and additionally exposes the atomic
// primitives (SetNX, Increment, Decrement, TTL) used for cross-process
// coordination.
//
// Backends that cross a process boundary tag connectivity and timeout
// failures with ErrUnavailable so callers can apply a fail-open policy
// without inspecting driver errors.
package cache
