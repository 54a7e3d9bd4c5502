package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of all noisewatch spans.
const tracerName = "github.com/MrWong99/noisewatch"

// Span names emitted by the pipeline.
const (
	SpanSession   = "noisewatch.session"
	SpanInference = "noisewatch.inference"
	SpanAlert     = "noisewatch.alert"

	SpanInteraction = "noisewatch.discord.interaction"
)

// Span attribute keys.
const (
	SessionIDKey = attribute.Key("noise.session_id")
	LabelKey     = attribute.Key("noise.label")
	LoudnessKey  = attribute.Key("noise.loudness_db")
	ThresholdKey = attribute.Key("noise.threshold_db")
	AlertClass   = attribute.Key("noise.alert_class")
	RouteKey     = attribute.Key("discord.route")
)

// Tracer returns the noisewatch tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span carrying attrs. The session id stored in ctx by
// [WithSession] is added automatically. The caller must end the span, usually
// with [EndSpan].
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if id := SessionID(ctx); id != "" {
		attrs = append(attrs, SessionIDKey.String(id))
	}
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan marks span failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type sessionKey struct{}

// WithSession returns a context tagged with a monitoring session id. Spans
// and loggers derived from it carry the id.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the id stored by [WithSession], or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// CorrelationID returns the trace id of the active span in ctx, or "" when
// there is none.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with the session id and the
// active trace and span ids found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := SessionID(ctx); id != "" {
		l = l.With(slog.String("session_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
