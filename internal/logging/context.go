package logging

import (
	"context"
)

type contextKey int

const requestIDKey contextKey = 0

// WithRequestIDCtx returns a new context carrying the request ID.
func WithRequestIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromCtx extracts the request ID from the context.
func RequestIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextLogger derives a logger for ctx from base (or the global logger when
// base is nil), tagged with the request ID carried by ctx if any.
func ContextLogger(ctx context.Context, base *Logger) *Logger {
	l := base
	if l == nil {
		l = Global()
	}
	if id := RequestIDFromCtx(ctx); id != "" {
		l = l.WithRequestID(id)
	}
	return l
}
