package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultPostgresTable = "cache"

// PostgresDB is the subset of *pgxpool.Pool the Postgres backend needs,
// narrowed so tests can substitute a fake.
type PostgresDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a cache backed by a PostgreSQL table. Keys are stored as their
// SHA-256 hash with the original key kept in a plain_key column for
// diagnostics; values are stored as JSONB. Expiry is lazy: the stored epoch
// deadline is evaluated at read time and expired rows are deleted on access.
// CleanupExpired can be run periodically to remove rows nothing reads anymore.
type Postgres struct {
	db    PostgresDB
	table string
	now   func() time.Time

	getSQL     string
	setSQL     string
	removeSQL  string
	existsSQL  string
	clearSQL   string
	cleanupSQL string
}

// PostgresOption configures a Postgres cache.
type PostgresOption func(*Postgres)

// WithPostgresTable overrides the cache table name.
func WithPostgresTable(table string) PostgresOption {
	return func(p *Postgres) {
		p.table = table
	}
}

// WithPostgresClock overrides the time source. Used by tests to control expiry.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(p *Postgres) {
		p.now = now
	}
}

// NewPostgres creates a PostgreSQL-backed cache on top of db.
// It panics if db is nil.
func NewPostgres(db PostgresDB, opts ...PostgresOption) *Postgres {
	if db == nil {
		panic("cache: postgres db cannot be nil")
	}
	p := &Postgres{
		db:    db,
		table: defaultPostgresTable,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	// The table name comes from configuration, not request input.
	p.getSQL = fmt.Sprintf(`SELECT value, expires_at FROM %s WHERE key = $1 LIMIT 1`, p.table)
	p.setSQL = fmt.Sprintf(`
		INSERT INTO %s (key, plain_key, value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`, p.table)
	p.removeSQL = fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, p.table)
	p.existsSQL = fmt.Sprintf(`SELECT EXISTS (
		SELECT 1 FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2))`, p.table)
	p.clearSQL = fmt.Sprintf(`DELETE FROM %s`, p.table)
	p.cleanupSQL = fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= $1`, p.table)

	return p
}

func hashKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

func (p *Postgres) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var (
		value     []byte
		expiresAt *int64
	)
	err := p.db.QueryRow(ctx, p.getSQL, hashKey(key)).Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	if expiresAt != nil && p.now().Unix() >= *expiresAt {
		if err := p.Remove(ctx, key); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := encode(value)
	if err != nil {
		return err
	}
	expiresAt := p.now().Add(normalizeTTL(ttl)).Unix()

	if _, err := p.db.Exec(ctx, p.setSQL, hashKey(key), key, b, expiresAt); err != nil {
		return unavailable(err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	if _, err := p.db.Exec(ctx, p.removeSQL, hashKey(key)); err != nil {
		return unavailable(err)
	}
	return nil
}

func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	if err := p.db.QueryRow(ctx, p.existsSQL, hashKey(key), p.now().Unix()).Scan(&exists); err != nil {
		return false, unavailable(err)
	}
	return exists, nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, p.clearSQL); err != nil {
		return unavailable(err)
	}
	return nil
}

// CleanupExpired removes rows whose expiry is in the past and returns the
// number of rows deleted. The cache never depends on this being run; it only
// keeps the table from accumulating dead rows.
func (p *Postgres) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := p.db.Exec(ctx, p.cleanupSQL, p.now().Unix())
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}
