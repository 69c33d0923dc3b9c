package cache_test

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/ratekit/pkg/cache"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error {
	return r.scan(dest...)
}

// fakeDB records executed statements and serves canned rows keyed by the
// statement's first argument.
type fakeDB struct {
	execs    []execCall
	execErr  error
	queryRow func(sql string, args []any) pgx.Row
}

type execCall struct {
	sql  string
	args []any
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, execCall{sql: sql, args: args})
	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.queryRow(sql, args)
}

func valueRow(value []byte, expiresAt *int64) pgx.Row {
	return fakeRow{scan: func(dest ...any) error {
		*dest[0].(*[]byte) = value
		*dest[1].(**int64) = expiresAt
		return nil
	}}
}

func errRow(err error) pgx.Row {
	return fakeRow{scan: func(...any) error { return err }}
}

func TestPostgres_Get(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("returns stored value before expiry", func(t *testing.T) {
		t.Parallel()

		expiresAt := now.Add(time.Minute).Unix()
		db := &fakeDB{queryRow: func(string, []any) pgx.Row {
			return valueRow([]byte(`{"name":"A"}`), &expiresAt)
		}}
		c := cache.NewPostgres(db, cache.WithPostgresClock(clock))

		got, err := c.Get(ctx, "user:1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"A"}`, string(got))
	})

	t.Run("missing row returns ErrNotFound", func(t *testing.T) {
		t.Parallel()

		db := &fakeDB{queryRow: func(string, []any) pgx.Row { return errRow(pgx.ErrNoRows) }}
		c := cache.NewPostgres(db, cache.WithPostgresClock(clock))

		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("expired row is deleted on access", func(t *testing.T) {
		t.Parallel()

		expiresAt := now.Add(-time.Second).Unix()
		db := &fakeDB{queryRow: func(string, []any) pgx.Row {
			return valueRow([]byte(`"stale"`), &expiresAt)
		}}
		c := cache.NewPostgres(db, cache.WithPostgresClock(clock))

		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, cache.ErrNotFound)
		require.Len(t, db.execs, 1)
		assert.Contains(t, db.execs[0].sql, "DELETE FROM cache")
	})

	t.Run("connectivity failure maps to ErrUnavailable", func(t *testing.T) {
		t.Parallel()

		db := &fakeDB{queryRow: func(string, []any) pgx.Row {
			return errRow(errors.New("connection refused"))
		}}
		c := cache.NewPostgres(db, cache.WithPostgresClock(clock))

		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, cache.ErrUnavailable)
	})
}

func TestPostgres_Set(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("upserts hashed key with plain key and expiry", func(t *testing.T) {
		t.Parallel()

		db := &fakeDB{}
		c := cache.NewPostgres(db, cache.WithPostgresClock(clock))

		require.NoError(t, c.Set(ctx, "user:1", map[string]string{"name": "A"}, time.Minute))

		require.Len(t, db.execs, 1)
		call := db.execs[0]
		assert.Contains(t, call.sql, "ON CONFLICT (key) DO UPDATE")

		wantHash := sha256.Sum256([]byte("user:1"))
		assert.Equal(t, wantHash[:], call.args[0])
		assert.Equal(t, "user:1", call.args[1])

		var stored map[string]string
		require.NoError(t, json.Unmarshal(call.args[2].([]byte), &stored))
		assert.Equal(t, map[string]string{"name": "A"}, stored)
		assert.Equal(t, now.Add(time.Minute).Unix(), call.args[3])
	})

	t.Run("nil value is rejected without touching the store", func(t *testing.T) {
		t.Parallel()

		db := &fakeDB{}
		c := cache.NewPostgres(db)

		err := c.Set(ctx, "k", nil, time.Minute)
		assert.ErrorIs(t, err, cache.ErrNilValue)
		assert.Empty(t, db.execs)
	})

	t.Run("write failure maps to ErrUnavailable", func(t *testing.T) {
		t.Parallel()

		db := &fakeDB{execErr: errors.New("timeout")}
		c := cache.NewPostgres(db)

		err := c.Set(ctx, "k", "v", time.Minute)
		assert.ErrorIs(t, err, cache.ErrUnavailable)
	})
}

func TestPostgres_Exists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	db := &fakeDB{queryRow: func(sql string, args []any) pgx.Row {
		return fakeRow{scan: func(dest ...any) error {
			*dest[0].(*bool) = true
			return nil
		}}
	}}
	c := cache.NewPostgres(db)

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgres_ClearAndCleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := &fakeDB{}
	c := cache.NewPostgres(db, cache.WithPostgresTable("app_cache"))

	require.NoError(t, c.Clear(ctx))

	n, err := c.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.Len(t, db.execs, 2)
	assert.Equal(t, "DELETE FROM app_cache", db.execs[0].sql)
	assert.Contains(t, db.execs[1].sql, "expires_at IS NOT NULL")
}
