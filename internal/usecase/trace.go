package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var usecaseTracer = otel.Tracer("sportsync/internal/usecase")

// startUsecaseSpan opens a child span only when a sampled trace is already in
// flight. Scheduler-driven jobs without an inbound trace stay span-free
// instead of rooting orphan traces on every tick.
func startUsecaseSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	parent := trace.SpanFromContext(ctx)
	if name == "" || !parent.SpanContext().IsValid() {
		return ctx, parent
	}
	return usecaseTracer.Start(ctx, name)
}
