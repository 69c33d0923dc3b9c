package cache

import "errors"

var (
	// ErrNotFound is returned when a key is missing or its entry has expired.
	ErrNotFound = errors.New("cache entry not found")

	// ErrNilValue is returned when a caller attempts to cache a nil value.
	ErrNilValue = errors.New("nil value cannot be cached")

	// ErrInvalidValue is returned when a value cannot be JSON-encoded or decoded.
	ErrInvalidValue = errors.New("value is not JSON-serializable")

	// ErrUnavailable is returned when a backend store is unreachable or the
	// call timed out. Callers treat it as a transient condition.
	ErrUnavailable = errors.New("cache backend unavailable")
)

// unavailable tags driver-level failures so callers can detect transient
// backend conditions without depending on driver error types.
func unavailable(err error) error {
	return errors.Join(ErrUnavailable, err)
}
