package pg_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/ratekit/pkg/pg"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, pg.IsNotFoundError(pgx.ErrNoRows))
	assert.True(t, pg.IsNotFoundError(fmt.Errorf("fetch rule: %w", pgx.ErrNoRows)))
	assert.False(t, pg.IsNotFoundError(errors.New("connection refused")))
	assert.False(t, pg.IsNotFoundError(nil))
}

func TestIsDuplicateKeyError(t *testing.T) {
	t.Parallel()

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "rate_limit_rules_scope_unique"}
	assert.True(t, pg.IsDuplicateKeyError(dup))
	assert.True(t, pg.IsDuplicateKeyError(fmt.Errorf("insert rule: %w", dup)))

	fk := &pgconn.PgError{Code: "23503"}
	assert.False(t, pg.IsDuplicateKeyError(fk))
	assert.False(t, pg.IsDuplicateKeyError(errors.New("not a pg error")))
	assert.False(t, pg.IsDuplicateKeyError(nil))
}
