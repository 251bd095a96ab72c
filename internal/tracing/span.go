package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RunSpanName names the root span of one test attempt.
const RunSpanName = "fsperf.run"

// StartRunSpan starts the root span for one test attempt against a section.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, test, section, purpose string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, RunSpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("fsperf.test", test),
		attribute.String("fsperf.section", section),
		attribute.String("fsperf.purpose", purpose),
	)
	return ctx, span
}

// StartStateSpan starts a child span covering one lifecycle state.
func StartStateSpan(ctx context.Context, tracer trace.Tracer, state string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "fsperf."+state)
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
