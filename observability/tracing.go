package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/recur"

// Tracer provides OpenTelemetry tracing for recur.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer on the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// NewTracerWithProvider creates a tracer on tp.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartMaterializeSpan starts the span covering one Materialize call.
func (t *Tracer) StartMaterializeSpan(ctx context.Context, orgID string, horizon time.Time) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "recur.materialize",
		trace.WithAttributes(
			attribute.String("recur.org_id", orgID),
			attribute.String("recur.horizon", horizon.Format(time.DateOnly)),
		),
	)
}

// EndMaterializeSpan ends a Materialize span with the aggregate counts.
func (t *Tracer) EndMaterializeSpan(span trace.Span, processed, advanced, created int, err error) {
	span.SetAttributes(
		attribute.Int("recur.rules_processed", processed),
		attribute.Int("recur.rules_advanced", advanced),
		attribute.Int("recur.instances_created", created),
	)
	endWithError(span, err)
}

// StartRuleSpan starts the span covering the advancement of one rule.
func (t *Tracer) StartRuleSpan(ctx context.Context, ruleID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "recur.rule",
		trace.WithAttributes(attribute.String("recur.rule_id", ruleID)),
	)
}

// EndRuleSpan ends a rule span.
func (t *Tracer) EndRuleSpan(span trace.Span, outcome string, created, attempts int, err error) {
	span.SetAttributes(
		attribute.String("recur.outcome", outcome),
		attribute.Int("recur.instances_created", created),
		attribute.Int("recur.attempts", attempts),
	)
	endWithError(span, err)
}

func endWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
