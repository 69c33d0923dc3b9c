package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultRequestsTable = "rate_limit_requests"

var requestColumns = []string{
	"id", "product", "path",
	"hour_key", "day_key", "month_key",
	"method", "status_code", "outcome",
	"request_headers", "request_body", "response_headers", "response_body",
	"created_at",
}

// PostgresDB is the subset of *pgxpool.Pool the storage needs, narrowed so
// tests can substitute a fake.
type PostgresDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresStorage appends audit records to a PostgreSQL table. Single
// records go through a plain insert; batches use the COPY protocol.
type PostgresStorage struct {
	db        PostgresDB
	table     string
	insertSQL string
}

// PostgresStorageOption configures a PostgresStorage.
type PostgresStorageOption func(*PostgresStorage)

// WithTable overrides the audit table name.
func WithTable(table string) PostgresStorageOption {
	return func(s *PostgresStorage) {
		s.table = table
	}
}

// NewPostgresStorage creates an audit storage on top of db.
// It panics if db is nil.
func NewPostgresStorage(db PostgresDB, opts ...PostgresStorageOption) *PostgresStorage {
	if db == nil {
		panic("audit: postgres db cannot be nil")
	}
	s := &PostgresStorage{
		db:    db,
		table: defaultRequestsTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.insertSQL = fmt.Sprintf(`
		INSERT INTO %s (id, product, path, hour_key, day_key, month_key,
			method, status_code, outcome,
			request_headers, request_body, response_headers, response_body,
			created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, s.table)
	return s
}

func (s *PostgresStorage) Store(ctx context.Context, rec Record) error {
	if _, err := s.db.Exec(ctx, s.insertSQL, recordValues(rec)...); err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func (s *PostgresStorage) StoreBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := s.db.CopyFrom(ctx, pgx.Identifier{s.table}, requestColumns,
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			return recordValues(recs[i]), nil
		}))
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

func recordValues(rec Record) []any {
	return []any{
		rec.ID, rec.Product, rec.Path,
		rec.HourKey, rec.DayKey, rec.MonthKey,
		rec.Method, rec.StatusCode, string(rec.Outcome),
		rec.RequestHeaders, rec.RequestBody, rec.ResponseHeaders, rec.ResponseBody,
		rec.CreatedAt,
	}
}
