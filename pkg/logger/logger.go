package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	runIDKey contextKey = "run_id"
	storeKey contextKey = "store_id"
)

// Output formats accepted by NewWithWriter.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// New creates a new structured logger with the given service name and level.
// Logs go to stderr so that stdout stays free for operator-facing output.
func New(serviceName, level, format string) *slog.Logger {
	return NewWithWriter(serviceName, level, format, os.Stderr)
}

// NewWithWriter creates a new structured logger writing to the given writer.
func NewWithWriter(serviceName, level, format string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == FormatText {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", serviceName),
	)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRunID returns a new context carrying the regeneration run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run ID from the context.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// WithStoreID returns a new context carrying the store currently processed.
func WithStoreID(ctx context.Context, storeID int64) context.Context {
	return context.WithValue(ctx, storeKey, storeID)
}

// StoreIDFromContext extracts the store ID stored by WithStoreID.
func StoreIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(storeKey).(int64)
	return id, ok
}

// WithContext returns a logger with context-derived fields (run_id, store_id, trace_id, span_id).
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	if id := RunIDFromContext(ctx); id != "" {
		l = l.With(slog.String("run_id", id))
	}

	if id, ok := StoreIDFromContext(ctx); ok {
		l = l.With(slog.Int64("store_id", id))
	}

	// Inject OpenTelemetry trace context if a valid span is present.
	if spanCtx := trace.SpanFromContext(ctx).SpanContext(); spanCtx.IsValid() {
		l = l.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return l
}
