package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// DefaultTTL is applied when Set is called with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// Cache is the capability contract implemented by every backend.
type Cache interface {
	// Get returns the stored value for key, or ErrNotFound when the key is
	// missing or expired. It never returns a nil value with a nil error.
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// Set stores value under key for ttl. A nil value is rejected with
	// ErrNilValue. A non-positive ttl falls back to DefaultTTL. Setting an
	// existing key overwrites its value and expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Exists reports whether key is present and not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear drops every entry this cache manages. Backends sharing a store
	// with other data limit this to their own namespace.
	Clear(ctx context.Context) error
}

// GetAs retrieves key from c and decodes the stored JSON into T.
func GetAs[T any](ctx context.Context, c Cache, key string) (T, error) {
	var v T
	raw, err := c.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errors.Join(ErrInvalidValue, err)
	}
	return v, nil
}

func encode(value any) ([]byte, error) {
	if value == nil {
		return nil, ErrNilValue
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Join(ErrInvalidValue, err)
	}
	return b, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
