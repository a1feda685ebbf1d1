package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// With derives a context whose logger carries the given attributes, so
// request-scoped metadata is attached once instead of on every log call.
func With(ctx context.Context, attrs ...any) context.Context {
	return context.WithValue(ctx, contextKey{}, From(ctx).With(attrs...))
}

// From returns the request-scoped logger, or the process default when the
// context carries none.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return LoggerWrapper()
}
