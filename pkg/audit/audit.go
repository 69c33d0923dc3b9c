package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/ratekit/pkg/timewindow"
)

// Outcome reports how the rate limiter disposed of a request.
type Outcome string

const (
	OutcomeAdmitted Outcome = "admitted"
	OutcomeRejected Outcome = "rejected"
)

// Record is one audit row per inbound request.
type Record struct {
	ID      string `json:"id"`
	Product string `json:"product"`
	Path    string `json:"path"`

	// Window keys in the pkg/timewindow encoding, computed once at write time.
	HourKey  int64 `json:"hour_key"`
	DayKey   int64 `json:"day_key"`
	MonthKey int64 `json:"month_key"`

	Method     string  `json:"method"`
	StatusCode int     `json:"status_code"`
	Outcome    Outcome `json:"outcome"`

	// Request/response captures are optional and only populated when the
	// middleware runs with body capture enabled.
	RequestHeaders  string `json:"request_headers,omitempty"`
	RequestBody     string `json:"request_body,omitempty"`
	ResponseHeaders string `json:"response_headers,omitempty"`
	ResponseBody    string `json:"response_body,omitempty"`

	// CreatedAt is the instant the request was received, and the instant the
	// window keys are derived from.
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the record carries a full scope and an outcome.
func (r *Record) Validate() error {
	if r.Product == "" || r.Path == "" {
		return fmt.Errorf("%w: product and path are required", ErrInvalidRecord)
	}
	if r.Outcome == "" {
		return fmt.Errorf("%w: outcome is required", ErrInvalidRecord)
	}
	return nil
}

// Storage persists audit records.
type Storage interface {
	Store(ctx context.Context, rec Record) error
}

// BatchStorage is implemented by storages that support bulk writes. The
// async writer uses it when available instead of storing one row at a time.
type BatchStorage interface {
	StoreBatch(ctx context.Context, recs []Record) error
}

// Sink stamps records with an ID, timestamp, and window keys, then hands
// them to storage. Storage failures are logged and swallowed so auditing
// never fails the request being audited.
type Sink struct {
	storage Storage
	log     *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithLogger sets the logger used to report swallowed storage failures.
func WithLogger(log *slog.Logger) SinkOption {
	return func(s *Sink) {
		s.log = log
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) {
		s.now = now
	}
}

// WithStorageTimeout bounds each storage call. Default is 5s.
func WithStorageTimeout(d time.Duration) SinkOption {
	return func(s *Sink) {
		s.timeout = d
	}
}

// NewSink creates an audit sink writing to storage.
// It panics if storage is nil.
func NewSink(storage Storage, opts ...SinkOption) *Sink {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}
	s := &Sink{
		storage: storage,
		log:     slog.Default(),
		now:     time.Now,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record persists one audit row. A zero CreatedAt defaults to the current
// instant; the window keys are always derived from CreatedAt so rows stay
// joinable with count queries regardless of how late the write happens.
// Only validation errors are returned; storage failures are logged and
// swallowed.
func (s *Sink) Record(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	keys := timewindow.At(rec.CreatedAt)
	rec.HourKey = keys.Hour
	rec.DayKey = keys.Day
	rec.MonthKey = keys.Month

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.storage.Store(ctx, rec); err != nil {
		s.log.WarnContext(ctx, "audit write failed, continuing without record",
			slog.String("product", rec.Product),
			slog.String("path", rec.Path),
			slog.String("outcome", string(rec.Outcome)),
			slog.Any("error", err),
		)
	}
	return nil
}
