// Package pg bootstraps the PostgreSQL layer the cache, rule, and audit
// storages run on: a pgxpool connection pool with startup retries, goose
// schema migrations, and a health-check closure.
//
// Config is populated from environment variables via github.com/caarlos0/env
// tags. Connect retries with a linearly growing delay so a database that is
// still starting does not fail the whole service, and Migrate applies the SQL
// migrations under internal/db/migrations before traffic is served.
//
// The returned *pgxpool.Pool is what the rest of the module consumes:
// cache.NewPostgres, ratelimiter.NewPostgresRuleSource/NewPostgresCountSource,
// and audit.NewPostgresStorage all accept it through narrow interfaces.
package pg
