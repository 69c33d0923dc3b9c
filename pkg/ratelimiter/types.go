package ratelimiter

import "fmt"

// Scope identifies what a rate limit applies to: one product calling one path.
type Scope struct {
	Product string `json:"product"`
	Path    string `json:"path"`
}

func (s Scope) String() string {
	return s.Product + ":" + s.Path
}

// Validate reports whether the scope is fully populated.
func (s Scope) Validate() error {
	if s.Product == "" || s.Path == "" {
		return fmt.Errorf("%w: product and path are required", ErrInvalidScope)
	}
	return nil
}

// Window names used in rejection results and logs.
const (
	WindowHour  = "hour"
	WindowDay   = "day"
	WindowMonth = "month"
)

// Rule holds the configured limits for one scope. A limit of zero means the
// corresponding window is unlimited and never rejects.
type Rule struct {
	Scope        Scope `json:"scope"`
	HourlyLimit  int64 `json:"hourly_limit"`
	DailyLimit   int64 `json:"daily_limit"`
	MonthlyLimit int64 `json:"monthly_limit"`
}

// RequestCount is a point-in-time aggregate of audit rows for one scope in
// the current hour, day, and month windows. It is derived data, recomputed
// on demand and cached, never persisted.
type RequestCount struct {
	Scope   Scope `json:"scope"`
	Hourly  int64 `json:"hourly_count"`
	Daily   int64 `json:"daily_count"`
	Monthly int64 `json:"monthly_count"`
}
