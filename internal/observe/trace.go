package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/raaee"

// ExchangeIDKey is the span and log attribute carrying the exchange ID.
const ExchangeIDKey = "exchange_id"

type exchangeKey struct{}

// WithExchangeID returns a child of ctx tagged with the ID of the exchange
// being answered. Spans started from it and loggers derived from it carry the
// ID, so traces and log lines line up with journal entries. The active span,
// if any, is tagged as well.
func WithExchangeID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(ExchangeIDKey, id))
	return context.WithValue(ctx, exchangeKey{}, id)
}

// ExchangeID returns the exchange ID set by [WithExchangeID], or "".
func ExchangeID(ctx context.Context) string {
	id, _ := ctx.Value(exchangeKey{}).(string)
	return id
}

// Tracer returns the Raa'ee tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller must call span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := ExchangeID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String(ExchangeIDKey, id)))
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the trace, span and exchange IDs
// found in ctx attached.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := ExchangeID(ctx); id != "" {
		attrs = append(attrs, slog.String(ExchangeIDKey, id))
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
