package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/visionvoice"

// RequestIDKey is the span attribute carrying the capture cycle's request ID.
const RequestIDKey = attribute.Key("visionvoice.request_id")

type requestIDKey struct{}

// Tracer returns the package-level [trace.Tracer]. It uses the globally
// registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// WithRequestID returns a copy of ctx tagged with a capture request ID.
// [StartSpan] and [Logger] pick it up from there.
func WithRequestID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID reports the capture request ID stored in ctx, if any.
func RequestID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(requestIDKey{}).(uint64)
	return id, ok
}

// StartSpan starts a new span and returns the updated context and span. A
// request ID stored with [WithRequestID] is added as [RequestIDKey]. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id, ok := RequestID(ctx); ok {
		opts = append(opts, trace.WithAttributes(RequestIDKey.Int64(int64(id))))
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default [slog.Logger] enriched with whatever ctx
// carries: trace_id and span_id from the active span, and request_id from
// [WithRequestID].
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id, ok := RequestID(ctx); ok {
		l = l.With(slog.Uint64("request_id", id))
	}
	return l
}

// SpanError records err on span and marks it failed. A nil err is a no-op.
func SpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
