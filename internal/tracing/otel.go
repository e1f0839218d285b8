package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope every stage span is recorded
// under, following the otel.Tracer(name) convention used for HTTP spans
// elsewhere in the corpus (BaSui01-agentflow/cmd/agentflow/middleware.go's
// OTelTracing middleware).
const tracerName = "legalrag/orchestrator"

// InitTracerProvider installs an SDK TracerProvider built from the given
// span processors (e.g. a batch exporter to the APM backend of choice) as
// the global provider StartStageSpan's otel.Tracer call resolves against.
// Returns the provider so the caller can Shutdown it on process exit.
func InitTracerProvider(processors ...sdktrace.SpanProcessor) *sdktrace.TracerProvider {
	opts := make([]sdktrace.TracerProviderOption, 0, len(processors))
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp
}

// StartStageSpan opens a span named "rag.<stage>" for one orchestrator
// stage, tagging it with the request ID so a trace in an APM backend can be
// joined back to the JSON-lines Pipeline Trace record for the same request.
func StartStageSpan(ctx context.Context, stage, requestID string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "rag."+stage)
	span.SetAttributes(
		attribute.String("rag.stage", stage),
		attribute.String("rag.request_id", requestID),
	)
	return ctx, span
}

// EndStageSpan closes span, recording err (if any) as the span's status.
func EndStageSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
