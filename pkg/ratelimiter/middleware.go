package ratelimiter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrymomot/ratekit/pkg/audit"
)

// maxCapturedBody caps how much of a request or response body is kept in an
// audit record when body capture is enabled.
const maxCapturedBody = 4096

// ScopeFunc derives the rate limit scope from a request.
type ScopeFunc func(r *http.Request) Scope

// ScopeFromHeader builds the scope from the named product header and the
// request path.
func ScopeFromHeader(header string) ScopeFunc {
	return func(r *http.Request) Scope {
		return Scope{Product: r.Header.Get(header), Path: r.URL.Path}
	}
}

// StaticProduct scopes every request under a fixed product name.
func StaticProduct(product string) ScopeFunc {
	return func(r *http.Request) Scope {
		return Scope{Product: product, Path: r.URL.Path}
	}
}

// AuditSink receives one record per non-whitelisted request.
type AuditSink interface {
	Record(ctx context.Context, rec audit.Record) error
}

type middlewareConfig struct {
	now           func() time.Time
	captureBodies bool
}

// MiddlewareOption configures the middleware.
type MiddlewareOption func(*middlewareConfig)

// WithBodyCapture stores truncated request/response headers and bodies in
// audit records. Meant for debugging, not steady-state production use.
func WithBodyCapture() MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.captureBodies = true
	}
}

// WithMiddlewareClock overrides the time source used to stamp audit records.
func WithMiddlewareClock(now func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.now = now
	}
}

// Middleware enforces the limiter on every request and records the outcome
// through the audit sink. Whitelisted paths bypass both. Rejections become
// plain 429 responses; audit failures never fail the request.
func Middleware(l *Limiter, sink AuditSink, scopeFn ScopeFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if l == nil {
		panic("ratelimiter: limiter cannot be nil")
	}
	if sink == nil {
		panic("ratelimiter: audit sink cannot be nil")
	}
	if scopeFn == nil {
		panic("ratelimiter: scope func cannot be nil")
	}
	cfg := middlewareConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.disabled || l.Whitelisted(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			receivedAt := cfg.now()
			scope := scopeFn(r)

			rec := audit.Record{
				Product:   scope.Product,
				Path:      scope.Path,
				Method:    r.Method,
				CreatedAt: receivedAt,
			}
			if cfg.captureBodies {
				rec.RequestHeaders = fmt.Sprint(r.Header)
				rec.RequestBody = captureRequestBody(r)
			}

			err := l.Allow(r.Context(), scope)
			var capErr *CapacityError
			switch {
			case errors.As(err, &capErr):
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				rec.StatusCode = http.StatusTooManyRequests
				rec.Outcome = audit.OutcomeRejected
				_ = sink.Record(r.Context(), rec)
				return
			case err != nil:
				// Only validation errors reach here; transient conditions
				// were already handled fail-open inside Allow.
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			rw := newStatusRecorder(w, cfg.captureBodies)
			next.ServeHTTP(rw, r)

			rec.StatusCode = rw.status
			rec.Outcome = audit.OutcomeAdmitted
			if cfg.captureBodies {
				rec.ResponseHeaders = fmt.Sprint(rw.Header())
				rec.ResponseBody = rw.capture.String()
			}
			_ = sink.Record(r.Context(), rec)
		})
	}
}

// captureRequestBody reads up to maxCapturedBody bytes of the request body
// and replaces it so the downstream handler still sees the full stream.
func captureRequestBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) > maxCapturedBody {
		body = body[:maxCapturedBody]
	}
	return string(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	capture     *bytes.Buffer
}

func newStatusRecorder(w http.ResponseWriter, captureBody bool) *statusRecorder {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	if captureBody {
		rec.capture = &bytes.Buffer{}
	}
	return rec
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.capture != nil && w.capture.Len() < maxCapturedBody {
		n := min(len(b), maxCapturedBody-w.capture.Len())
		w.capture.Write(b[:n])
	}
	return w.ResponseWriter.Write(b)
}
