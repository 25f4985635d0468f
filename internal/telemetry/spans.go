// Package telemetry holds the OpenTelemetry span helpers shared by the
// orchestrator and the agent invoker. Without a configured provider the
// global no-op tracer is used.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "invoicemesh"

// StartRunSpan starts a span for a document run.
func StartRunSpan(ctx context.Context, runID, documentID, mimeType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("document.id", documentID),
			attribute.String("document.mime_type", mimeType),
		),
	)
}

// StartStageSpan starts a span for one pipeline stage.
func StartStageSpan(ctx context.Context, stage string, iteration int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stage",
		trace.WithAttributes(
			attribute.String("stage.name", stage),
			attribute.Int("stage.iteration", iteration),
		),
	)
}

// StartAgentSpan starts a span for one agent invocation.
func StartAgentSpan(ctx context.Context, agent string, iteration int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent",
		trace.WithAttributes(
			attribute.String("agent.name", agent),
			attribute.Int("agent.iteration", iteration),
		),
	)
}

// EndWithError records err on span (if any) and ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
