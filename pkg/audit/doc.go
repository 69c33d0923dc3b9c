// Package audit persists one record per rate-limited request, tagged with
// the hour/day/month window keys the rate limiter engine aggregates over.
//
// Records are append-only: the engine never updates or deletes them, and
// retention is an external concern. Window keys are computed once at write
// time, from the instant the request was received, using the same encoding
// as pkg/timewindow; this keeps stored rows joinable with count queries.
//
// The write path is fail-open. Sink logs and swallows storage failures so a
// slow or unavailable store never fails the request being audited, and the
// optional Async wrapper moves writes off the request path entirely.
package audit
