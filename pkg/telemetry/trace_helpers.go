package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the skillpack tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(DefaultServiceName)
}

// WithSpan runs f inside a span named name. A returned error is recorded on
// the span and marks it failed.
func WithSpan(ctx context.Context, name string, f func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	err := f(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// SetAttributes adds attributes to the current span
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// UnitAttributes describes one skill unit on a span.
func UnitAttributes(name, path string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("skill.name", name),
		attribute.String("skill.path", path),
	}
}
