package tracing

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartLevelSpan opens the span covering one concurrency level of a sweep.
func StartLevelSpan(ctx context.Context, tracer trace.Tracer, concurrency int, duration time.Duration) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "sweep.level",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.Int("vecsweep.concurrency", concurrency),
		attribute.Float64("vecsweep.duration_s", duration.Seconds()),
	)
	return ctx, span
}

// StartRequestSpan starts a client span for one search request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, url string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "vectordb.search",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", url),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
