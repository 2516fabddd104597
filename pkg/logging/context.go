package logging

import (
	"context"
	"log/slog"
)

type ctxLoggerKey struct{}

// WithContext returns a copy of ctx carrying log. The request logger
// middleware uses it to hand a request-scoped logger to handlers.
func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, log)
}

// FromContext returns the logger stored by WithContext, or slog.Default
// when ctx carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(ctxLoggerKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return slog.Default()
}
