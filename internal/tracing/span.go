package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on loadengine spans.
const (
	AttrRunID    = attribute.Key("loadengine.run_id")
	AttrRole     = attribute.Key("loadengine.role")
	AttrWorker   = attribute.Key("loadengine.worker")
	AttrProtocol = attribute.Key("loadengine.protocol")
	AttrTarget   = attribute.Key("loadengine.target")
)

// StartRunSpan starts the span that parents every task span of one run.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, runID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "load run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrRunID.String(runID)),
	)
}

// StartWorkerSpan starts the span around one task handled by a worker.
func StartWorkerSpan(ctx context.Context, tracer trace.Tracer, role string, index int) (context.Context, trace.Span) {
	return tracer.Start(ctx, role+" task",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrRole.String(role), AttrWorker.Int(index)),
	)
}

// StartRequestSpan starts a client span for a request sent by a workload.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, protocol, target string) (context.Context, trace.Span) {
	name := protocol + " request"
	attrs := []attribute.KeyValue{AttrProtocol.String(protocol)}
	if target != "" {
		name = protocol + " " + target
		attrs = append(attrs, AttrTarget.String(target))
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders writes the span context of ctx into headers using the
// global propagator.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
