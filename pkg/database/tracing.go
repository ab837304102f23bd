package database

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/acaidelivery/checkout/pkg/database"

// QueryTracer opens client spans around store operations and warns about
// operations slower than SlowThreshold. A zero threshold disables the warning.
type QueryTracer struct {
	System        string
	SlowThreshold time.Duration
	Logger        *slog.Logger
}

// Trace starts a span for operation. Call the returned function with the
// operation's error when it finishes:
//
//	ctx, end := t.Trace(ctx, "get", "cart")
//	defer func() { end(err) }()
func (t QueryTracer) Trace(ctx context.Context, operation, key string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", t.System),
			attribute.String("db.operation", operation),
			attribute.String("db.key", key),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if t.SlowThreshold <= 0 || t.Logger == nil {
			return
		}
		if elapsed := time.Since(start); elapsed >= t.SlowThreshold {
			t.Logger.WarnContext(ctx, "slow store operation",
				slog.String("db_system", t.System),
				slog.String("operation", operation),
				slog.String("key", key),
				slog.Duration("duration", elapsed),
			)
		}
	}
}
