package ratelimiter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/ratekit/pkg/timewindow"
)

const (
	defaultRulesTable    = "rate_limit_rules"
	defaultRequestsTable = "rate_limit_requests"
)

// Querier is the subset of *pgxpool.Pool the sources need, narrowed so tests
// can substitute a fake.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRuleSource reads rate limit rules from a PostgreSQL table with a
// unique (product, path) pair and one limit column per window.
type PostgresRuleSource struct {
	db      Querier
	ruleSQL string
}

// NewPostgresRuleSource creates a rule source on top of db.
// It panics if db is nil.
func NewPostgresRuleSource(db Querier, opts ...PostgresSourceOption) *PostgresRuleSource {
	if db == nil {
		panic("ratelimiter: db cannot be nil")
	}
	cfg := postgresSourceConfig{rulesTable: defaultRulesTable, requestsTable: defaultRequestsTable}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &PostgresRuleSource{
		db: db,
		ruleSQL: fmt.Sprintf(`
			SELECT hourly_limit, daily_limit, monthly_limit
			FROM %s
			WHERE product = $1 AND path = $2
			LIMIT 1`, cfg.rulesTable),
	}
}

func (s *PostgresRuleSource) FetchRule(ctx context.Context, scope Scope) (*Rule, error) {
	rule := &Rule{Scope: scope}
	err := s.db.QueryRow(ctx, s.ruleSQL, scope.Product, scope.Path).
		Scan(&rule.HourlyLimit, &rule.DailyLimit, &rule.MonthlyLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return rule, nil
}

// PostgresCountSource aggregates audit rows by window key. The audit table
// carries secondary indexes on (window_key, product, path) for each window
// granularity, keeping each COUNT sublinear in table size.
type PostgresCountSource struct {
	db       Querier
	hourSQL  string
	daySQL   string
	monthSQL string
}

// NewPostgresCountSource creates a count source on top of db.
// It panics if db is nil.
func NewPostgresCountSource(db Querier, opts ...PostgresSourceOption) *PostgresCountSource {
	if db == nil {
		panic("ratelimiter: db cannot be nil")
	}
	cfg := postgresSourceConfig{rulesTable: defaultRulesTable, requestsTable: defaultRequestsTable}
	for _, opt := range opts {
		opt(&cfg)
	}
	countSQL := func(column string) string {
		return fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1 AND product = $2 AND path = $3`,
			cfg.requestsTable, column)
	}
	return &PostgresCountSource{
		db:       db,
		hourSQL:  countSQL("hour_key"),
		daySQL:   countSQL("day_key"),
		monthSQL: countSQL("month_key"),
	}
}

// CountRequests issues the three window aggregates concurrently; they are
// independent reads and overlapping them hides most of the round-trip cost.
func (s *PostgresCountSource) CountRequests(ctx context.Context, scope Scope, keys timewindow.Keys) (*RequestCount, error) {
	count := &RequestCount{Scope: scope}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		count.Hourly, err = s.countWindow(ctx, s.hourSQL, keys.Hour, scope)
		return err
	})
	g.Go(func() (err error) {
		count.Daily, err = s.countWindow(ctx, s.daySQL, keys.Day, scope)
		return err
	})
	g.Go(func() (err error) {
		count.Monthly, err = s.countWindow(ctx, s.monthSQL, keys.Month, scope)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return count, nil
}

func (s *PostgresCountSource) countWindow(ctx context.Context, sql string, key int64, scope Scope) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, sql, key, scope.Product, scope.Path).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

type postgresSourceConfig struct {
	rulesTable    string
	requestsTable string
}

// PostgresSourceOption configures the Postgres-backed sources.
type PostgresSourceOption func(*postgresSourceConfig)

// WithRulesTable overrides the rule table name.
func WithRulesTable(table string) PostgresSourceOption {
	return func(cfg *postgresSourceConfig) {
		cfg.rulesTable = table
	}
}

// WithRequestsTable overrides the audit/request table name.
func WithRequestsTable(table string) PostgresSourceOption {
	return func(cfg *postgresSourceConfig) {
		cfg.requestsTable = table
	}
}
