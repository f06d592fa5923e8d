// Package otel bridges observe.Sink to OpenTelemetry tracing, so node
// invocations, fuse trips and repair attempts show up in any
// OpenTelemetry-compatible backend.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/PipeOpsHQ/airos/observe"
)

const instrumentationName = "github.com/PipeOpsHQ/airos"

// Sink implements observe.Sink by emitting one span per event.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider.
// If tp is nil, it uses a noop tracer provider.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{
		tracer: tp.Tracer(instrumentationName),
	}
}

// Emit converts an observe.Event into a span. The span is parented to any
// span already carried by ctx.
func (s *Sink) Emit(ctx context.Context, event observe.Event) error {
	event.Normalize()
	if ctx == nil {
		ctx = context.Background()
	}

	startTime := event.Timestamp
	_, span := s.tracer.Start(ctx, spanNameFor(event), trace.WithTimestamp(startTime))

	attrs := []attribute.KeyValue{
		attribute.String("airos.event.id", event.ID),
		attribute.String("airos.event.kind", string(event.Kind)),
	}
	if event.RunID != "" {
		attrs = append(attrs, attribute.String("airos.run.id", event.RunID))
	}
	if event.NodeID != "" {
		attrs = append(attrs, attribute.String("airos.node.id", event.NodeID))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("airos.status", string(event.Status)))
	}
	if event.Attempt > 0 {
		attrs = append(attrs, attribute.Int("airos.attempt", event.Attempt))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("airos.message", truncate(event.Message, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("airos.duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("airos.attr."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	switch event.Status {
	case observe.StatusFailed:
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(fmt.Errorf("%s", event.Error))
		}
	case observe.StatusCompleted, observe.StatusRepaired:
		span.SetStatus(codes.Ok, "")
	}

	endTime := startTime
	if event.DurationMs > 0 {
		endTime = startTime.Add(time.Duration(event.DurationMs) * time.Millisecond)
	}
	span.End(trace.WithTimestamp(endTime))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindNode:
		if event.NodeID != "" {
			return "airos.node." + event.NodeID
		}
		return "airos.node"
	case observe.KindFuse:
		return "airos.fuse.trip"
	case observe.KindSentinel:
		return "airos.sentinel.validate"
	case observe.KindMedic:
		return "airos.medic.repair"
	case observe.KindStore:
		return "airos.store.log_trace"
	default:
		return "airos.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
