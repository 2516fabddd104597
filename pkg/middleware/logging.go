package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"chatterbox/pkg/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger puts a request-scoped child logger into the context and
// logs the request on the way in and out.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			reqLog := log.With(
				logging.RequestID(reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				reqLog = reqLog.With(logging.TraceID(sc.TraceID().String()))
			}
			ctx := logging.WithContext(r.Context(), reqLog)

			reqLog.DebugContext(ctx, "http - request - started")
			next.ServeHTTP(w, r.WithContext(ctx))
			// For /ws this fires when the session ends.
			reqLog.DebugContext(ctx, "http - request - finished", slog.Duration("elapsed", time.Since(start)))
		})
	}
}
