// Package middleware carries the per-request correlation id: assigned at
// the HTTP boundary, threaded through context, and re-attached when a job
// event hops the queue to a worker.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const correlationHeader = "X-Correlation-ID"

type key int

const CorrelationKey key = 0

// CorrelationID tags every request with an id, honoring one supplied by
// the caller, and logs the request around the inner handler.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), CorrelationKey, id)
		w.Header().Set(correlationHeader, id)

		slog.Info("request received", "method", r.Method, "path", r.URL.Path, "correlation_id", id) // #nosec G706 -- r.URL.Path is parsed by Go's net/http
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		slog.Info("request completed", "method", r.Method, "path", r.URL.Path, "correlation_id", id, "duration", time.Since(start)) // #nosec G706
	})
}

// FromContext returns the correlation id, or "" when the context never
// passed through the middleware.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(CorrelationKey).(string)
	return id
}

// GetCorrelationID is FromContext with a placeholder for log fields that
// must never be empty.
func GetCorrelationID(ctx context.Context) string {
	if id := FromContext(ctx); id != "" {
		return id
	}
	return "unknown"
}

// WithCorrelationID re-attaches an id carried out-of-band, e.g. from a
// queue message.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationKey, id)
}
