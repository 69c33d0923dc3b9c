// Package logger builds the slog.Logger instances the rate limiter and
// audit sink report through.
//
// New applies functional options over production-safe defaults (JSON
// output at INFO level) and returns a ready *slog.Logger:
//
//	log := logger.New(
//	    logger.WithProduction("ratekit"),
//	    logger.WithAttr(slog.String("component", "ratelimiter")),
//	)
//	limiter := ratelimiter.New(store, rules, counts, ratelimiter.WithLogger(log))
//
// The attribute helpers keep field names consistent across packages so
// rejected requests, backend outages, and dropped audit records can be
// correlated by product and path in log aggregation.
package logger
