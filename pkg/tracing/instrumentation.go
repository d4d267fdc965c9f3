package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceOperation runs fn inside an internal span and records its error.
func TraceOperation(ctx context.Context, tracerName, operation string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, tracerName, operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// AddSpanAttributes adds attributes to the current span
func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// LocationAttributes describes a resolved coordinate.
func LocationAttributes(prefix string, latitude, longitude float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Float64(prefix+".latitude", latitude),
		attribute.Float64(prefix+".longitude", longitude),
	}
}

// TripAttributes tags a span with trip identity.
func TripAttributes(tripID, userID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("user.id", userID)}
	if tripID != "" {
		attrs = append(attrs, attribute.String("trip.id", tripID))
	}
	return attrs
}
