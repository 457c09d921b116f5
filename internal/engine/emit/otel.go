package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OtelEmitter turns each Event into a zero-duration OpenTelemetry span,
// generalized from the teacher's OTelEmitter (graph/emit/otel.go) from its
// generic Event{Msg, Step, Meta} shape to this package's fixed
// Event{Kind, Seq, Payload}: the span name is the event Kind, RunID/NodeID/
// Seq become standard attributes, and Payload entries become span
// attributes keyed by name the same way the teacher maps arbitrary
// metadata.
type OtelEmitter struct {
	tracer trace.Tracer
}

// NewOtelEmitter wraps tracer (e.g. otel.Tracer("agentgraph")) as an Emitter.
func NewOtelEmitter(tracer trace.Tracer) *OtelEmitter {
	return &OtelEmitter{tracer: tracer}
}

func (o *OtelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), string(event.Kind))
	defer span.End()
	o.annotate(span, event)
}

func (o *OtelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, string(event.Kind))
		o.annotate(span, event)
		span.End()
	}
	return nil
}

func (o *OtelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (o *OtelEmitter) annotate(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("agentgraph.execution_id", event.RunID),
		attribute.Int("agentgraph.seq", event.Seq),
		attribute.String("agentgraph.node_id", event.NodeID),
	)
	for key, value := range event.Payload {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(key, v))
		case int:
			span.SetAttributes(attribute.Int(key, v))
		case int64:
			span.SetAttributes(attribute.Int64(key, v))
		case float64:
			span.SetAttributes(attribute.Float64(key, v))
		case bool:
			span.SetAttributes(attribute.Bool(key, v))
		default:
			span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
	if errMsg, ok := event.Payload["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}

var _ Emitter = (*OtelEmitter)(nil)
