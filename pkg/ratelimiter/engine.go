package ratelimiter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/ratekit/pkg/cache"
	"github.com/dmitrymomot/ratekit/pkg/timewindow"
)

// Config holds the tunables of the engine, loadable from the environment
// via pkg/config.
type Config struct {
	Disabled       bool          `env:"RATE_LIMITER_DISABLED" envDefault:"false"`             // Disabled bypasses all checks and auditing.
	CacheTTL       time.Duration `env:"RATE_LIMITER_CACHE_TTL" envDefault:"5m"`               // CacheTTL bounds staleness of memoized rules and counts.
	BackendTimeout time.Duration `env:"RATE_LIMITER_BACKEND_TIMEOUT" envDefault:"2s"`         // BackendTimeout bounds each rule/count lookup.
	PathWhitelist  []string      `env:"RATE_LIMITER_PATH_WHITELIST" envSeparator:","` // PathWhitelist lists paths exempt from limiting and auditing.
}

// Limiter is the rate limiting engine. Construct it once at startup with
// explicit dependencies and share it across requests.
type Limiter struct {
	cache     cache.Cache
	rules     RuleSource
	counts    CountSource
	log       *slog.Logger
	now       func() time.Time
	cacheTTL  time.Duration
	timeout   time.Duration
	disabled  bool
	whitelist map[string]struct{}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger for fail-open and rejection events.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) {
		l.log = log
	}
}

// WithClock overrides the time source used to compute window keys.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithCacheTTL sets how long memoized rules and counts stay fresh.
// This is also the staleness bound on observed counts.
func WithCacheTTL(ttl time.Duration) Option {
	return func(l *Limiter) {
		if ttl > 0 {
			l.cacheTTL = ttl
		}
	}
}

// WithBackendTimeout bounds each backend call. On timeout the engine treats
// the backend as unavailable and fails open.
func WithBackendTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithWhitelist exempts the given paths from limiting entirely.
func WithWhitelist(paths ...string) Option {
	return func(l *Limiter) {
		for _, path := range paths {
			if path != "" {
				l.whitelist[path] = struct{}{}
			}
		}
	}
}

// WithDisabled turns the engine into a no-op that admits everything.
func WithDisabled(disabled bool) Option {
	return func(l *Limiter) {
		l.disabled = disabled
	}
}

// WithConfig applies an environment-loaded Config.
func WithConfig(cfg Config) Option {
	return func(l *Limiter) {
		WithDisabled(cfg.Disabled)(l)
		WithCacheTTL(cfg.CacheTTL)(l)
		WithBackendTimeout(cfg.BackendTimeout)(l)
		WithWhitelist(cfg.PathWhitelist...)(l)
	}
}

// New creates a Limiter memoizing rule and count lookups through c.
// It panics if any dependency is nil.
func New(c cache.Cache, rules RuleSource, counts CountSource, opts ...Option) *Limiter {
	if c == nil {
		panic("ratelimiter: cache cannot be nil")
	}
	if rules == nil {
		panic("ratelimiter: rule source cannot be nil")
	}
	if counts == nil {
		panic("ratelimiter: count source cannot be nil")
	}
	l := &Limiter{
		cache:     c,
		rules:     rules,
		counts:    counts,
		log:       slog.Default(),
		now:       time.Now,
		cacheTTL:  cache.DefaultTTL,
		timeout:   2 * time.Second,
		whitelist: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Whitelisted reports whether path is exempt from limiting and auditing.
func (l *Limiter) Whitelisted(path string) bool {
	_, ok := l.whitelist[path]
	return ok
}

// Allow checks the scope against its configured limits and returns nil to
// admit or a *CapacityError to reject. Backend unavailability and missing
// rules admit the request after logging a warning; only validation errors
// and capacity rejections are returned.
func (l *Limiter) Allow(ctx context.Context, scope Scope) error {
	if l.disabled {
		return nil
	}
	if err := scope.Validate(); err != nil {
		return err
	}
	if l.Whitelisted(scope.Path) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	// The rule and count lookups are independent reads; issuing them
	// concurrently hides the latency of a cold cache behind one round trip.
	// Each branch keeps its own error: one backend being down must not
	// discard the other's result.
	var (
		rule     *Rule
		ruleErr  error
		count    *RequestCount
		countErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		rule, ruleErr = l.fetchRule(ctx, scope)
		return nil
	})
	g.Go(func() error {
		count, countErr = l.fetchCount(ctx, scope)
		return nil
	})
	_ = g.Wait()

	switch {
	case errors.Is(ruleErr, ErrRuleNotFound):
		// A scope without a rule is a deployment gap, not a reason to block
		// traffic. Surface it, then admit.
		l.log.WarnContext(ctx, "no rate limit rule configured, admitting request",
			slog.String("product", scope.Product),
			slog.String("path", scope.Path),
		)
		return nil
	case ruleErr != nil || countErr != nil:
		l.log.WarnContext(ctx, "rate limit backend unavailable, admitting request",
			slog.String("product", scope.Product),
			slog.String("path", scope.Path),
			slog.Any("error", errors.Join(ruleErr, countErr)),
		)
		return nil
	}

	for _, dim := range []struct {
		window string
		limit  int64
		count  int64
	}{
		{WindowMonth, rule.MonthlyLimit, count.Monthly},
		{WindowDay, rule.DailyLimit, count.Daily},
		{WindowHour, rule.HourlyLimit, count.Hourly},
	} {
		// A zero limit means the window is unlimited.
		if dim.limit > 0 && dim.count >= dim.limit {
			l.log.WarnContext(ctx, "rate limit exceeded",
				slog.String("product", scope.Product),
				slog.String("path", scope.Path),
				slog.String("window", dim.window),
				slog.Int64("limit", dim.limit),
				slog.Int64("count", dim.count),
			)
			return &CapacityError{Scope: scope, Window: dim.window, Limit: dim.limit, Count: dim.count}
		}
	}
	return nil
}

func (l *Limiter) fetchRule(ctx context.Context, scope Scope) (*Rule, error) {
	key := "rule:" + scope.Product + ":" + scope.Path

	cached, err := cache.GetAs[Rule](ctx, l.cache, key)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		l.log.DebugContext(ctx, "rule cache read failed, falling through to source",
			slog.String("key", key), slog.Any("error", err))
	}

	rule, err := l.rules.FetchRule(ctx, scope)
	if err != nil {
		return nil, err
	}
	if err := l.cache.Set(ctx, key, rule, l.cacheTTL); err != nil {
		l.log.DebugContext(ctx, "rule cache write failed",
			slog.String("key", key), slog.Any("error", err))
	}
	return rule, nil
}

func (l *Limiter) fetchCount(ctx context.Context, scope Scope) (*RequestCount, error) {
	key := "count:" + scope.Product + ":" + scope.Path

	cached, err := cache.GetAs[RequestCount](ctx, l.cache, key)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		l.log.DebugContext(ctx, "count cache read failed, falling through to source",
			slog.String("key", key), slog.Any("error", err))
	}

	count, err := l.counts.CountRequests(ctx, scope, timewindow.At(l.now()))
	if err != nil {
		return nil, err
	}
	if err := l.cache.Set(ctx, key, count, l.cacheTTL); err != nil {
		l.log.DebugContext(ctx, "count cache write failed",
			slog.String("key", key), slog.Any("error", err))
	}
	return count, nil
}
