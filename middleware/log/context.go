package logger

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

// TraceIDKey is the context key under which the request trace id is stored.
const TraceIDKey contextKey = "trace_id"

// WithTraceID stores traceID in ctx, generating a fresh UUID when empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id stored in ctx, or "".
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func NewTraceID() string {
	return uuid.New().String()
}

// TraceField is a convenience for components that only hold a *zap.Logger.
func TraceField(ctx context.Context) zap.Field {
	return zap.String("trace_id", GetTraceID(ctx))
}
