package infrastructure

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// TraceIDContextKey stores the per-request or per-run trace id. The logging
// handler and the HTTP middleware both read it, so one id follows a request
// through every layer.
const TraceIDContextKey contextKey = "trace_id"

// GenerateTraceID mints a fresh trace id (UUID v4).
func GenerateTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores a trace id on the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID returns the context's trace id, or "" when none was set.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDContextKey).(string); ok {
		return traceID
	}
	return ""
}

// EnsureTraceID returns a context that carries a trace id, minting one when
// the caller arrived without. Pipeline runs triggered by cron or the CLI
// enter here; HTTP requests already carry the request id.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, GenerateTraceID())
}
