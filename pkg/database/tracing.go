package database

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/urlrewrite/pkg/logger"
)

const tracerName = "github.com/utafrali/urlrewrite/pkg/database"

type slowQuery struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueryCfg atomic.Pointer[slowQuery]

// SetSlowQueryLogging configures slow query detection. Statements running
// longer than threshold are logged as warnings together with the run and
// store they belong to. A zero threshold or nil logger disables it.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueryCfg.Store(nil)
		return
	}
	slowQueryCfg.Store(&slowQuery{threshold: threshold, logger: logger})
}

// TraceQuery starts a client span for a database operation. The returned
// function ends it and must be called once the operation completes:
//
//	ctx, end := database.TraceQuery(ctx, "SaveRewrites", query)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()

	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
		attribute.String("db.statement", statement),
	}
	if id := logger.RunIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("run.id", id))
	}
	if id, ok := logger.StoreIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.Int64("store.id", id))
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		cfg := slowQueryCfg.Load()
		if cfg == nil {
			return
		}
		elapsed := time.Since(start)
		if elapsed < cfg.threshold {
			return
		}
		args := []any{
			slog.String("operation", operation),
			slog.String("statement", statement),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			args = append(args, slog.String("error", err.Error()))
		}
		logger.WithContext(ctx, cfg.logger).WarnContext(ctx, "slow query detected", args...)
	}
}
