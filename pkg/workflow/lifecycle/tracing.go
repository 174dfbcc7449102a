package lifecycle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (s *Service) startSpan(ctx context.Context, name, workflowID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, fmt.Sprintf("%s: %s", name, workflowID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("span.type", name),
		),
	)
}

// endSpan records err, if any, and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func draftVersionAttr(v int) attribute.KeyValue {
	return attribute.Int("workflow.draft_version", v)
}

func publishedVersionAttr(v int) attribute.KeyValue {
	return attribute.Int("workflow.version", v)
}

func validationAttr(status ValidationStatus) attribute.KeyValue {
	return attribute.String("workflow.validation_status", string(status))
}
