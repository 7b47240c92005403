package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"example.com/basichttpd/internal/logger"
)

// RequestIDHeader carries the request ID back to the client.
const RequestIDHeader = "X-Request-Id"

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

type requestIDKey struct{}

// RequestIDFromContext returns the ID assigned by RequestIDMiddleware, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware gives every request a fresh UUID, stored in the
// request context and echoed in the response headers. Client-supplied IDs
// are ignored.
func RequestIDMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// RecoveryMiddleware turns a panic in the handler into a 500, if nothing has
// been written yet, and logs the stack.
func RecoveryMiddleware(lg *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := wrapRecorder(w)
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					lg.Error("panic recovered", logger.LogFields{
						"error":      fmt.Sprint(err),
						"stack":      string(debug.Stack()),
						"request_id": RequestIDFromContext(r.Context()),
						"uri":        r.RequestURI,
					})
					if !rec.wroteHeader {
						rec.Header().Set("Content-Type", "text/plain; charset=utf-8")
						rec.WriteHeader(http.StatusInternalServerError)
						rec.Write([]byte(http.StatusText(http.StatusInternalServerError) + "\n"))
					}
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// AccessLogMiddleware writes one access log line per request.
func AccessLogMiddleware(lg *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := wrapRecorder(w)
			next.ServeHTTP(rec, r)
			lg.Access(r, RequestIDFromContext(r.Context()), rec.Status(), rec.bytes, time.Since(start))
		})
	}
}

// MetricsMiddleware counts requests by status and observes their duration.
func MetricsMiddleware(m *Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := wrapRecorder(w)
			next.ServeHTTP(rec, r)
			m.Observe(rec.Status(), time.Since(start))
		})
	}
}

// statusRecorder remembers the status code and body size written through it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

// wrapRecorder reuses w when it is already a recorder so that nested
// middleware share one view of the response.
func wrapRecorder(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w}
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// Status returns the status sent, or 200 if the handler never wrote one.
func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
