// Package redis establishes the Redis connection the cache backend and
// rate-limit counters ride on.
//
// Config is read from REDIS_* environment variables. Connect parses the
// connection URL, pings the server, and retries a configurable number of
// times so a Redis container that is still starting does not take the
// service down with it. Healthcheck exposes the same ping as a probe
// closure.
//
// The returned *redis.Client satisfies cache.RedisClient directly.
package redis
