package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextKey string

// correlationIDKey is the context key for the per-request correlation ID.
const correlationIDKey contextKey = "correlation_id"

// SetCorrelationID stores the correlation ID in the context.
func SetCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID returns the correlation ID from the context, or an
// empty string when none was set.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID returns a log entry carrying the context's
// correlation ID, so every line for one request can be grepped together.
func WithCorrelationID(ctx context.Context, log *logrus.Logger) *logrus.Entry {
	if id := GetCorrelationID(ctx); id != "" {
		return log.WithField("correlation_id", id)
	}
	return logrus.NewEntry(log)
}
