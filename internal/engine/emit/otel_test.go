package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOtelEmitter_Emit(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOtelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		RunID:  "run-001",
		Seq:    1,
		NodeID: "nodeA",
		Kind:   KindStarted,
		Payload: map[string]interface{}{
			"node_type": "llm",
			"tokens":    150,
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != string(KindStarted) {
		t.Errorf("span name = %q, want %q", span.Name, KindStarted)
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["agentgraph.execution_id"]; got != "run-001" {
		t.Errorf("execution_id = %v, want %q", got, "run-001")
	}
	if got := attrs["agentgraph.seq"]; got != int64(1) {
		t.Errorf("seq = %v, want 1", got)
	}
	if got := attrs["agentgraph.node_id"]; got != "nodeA" {
		t.Errorf("node_id = %v, want %q", got, "nodeA")
	}
	if got := attrs["node_type"]; got != "llm" {
		t.Errorf("node_type = %v, want %q", got, "llm")
	}
	if got := attrs["tokens"]; got != int64(150) {
		t.Errorf("tokens = %v, want 150", got)
	}
	if !span.EndTime.After(span.StartTime) {
		t.Error("span was not ended")
	}
}

func TestOtelEmitter_EmitWithError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOtelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		RunID:  "run-001",
		Seq:    2,
		NodeID: "nodeA",
		Kind:   KindFailed,
		Payload: map[string]interface{}{
			"error": "validation failed",
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Errorf("status code = %v, want %v", span.Status.Code, codes.Error)
	}
	if span.Status.Description != "validation failed" {
		t.Errorf("status description = %q, want %q", span.Status.Description, "validation failed")
	}
	if len(span.Events) == 0 {
		t.Error("expected a recorded error event, got none")
	}
}

func TestOtelEmitter_EmitBatch(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOtelEmitter(otel.Tracer("test"))
	events := []Event{
		{RunID: "run-001", Seq: 1, NodeID: "nodeA", Kind: KindStarted},
		{RunID: "run-001", Seq: 2, NodeID: "nodeA", Kind: KindCompleted},
		{RunID: "run-001", Seq: 3, NodeID: "nodeB", Kind: KindStarted},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch failed: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	wantNames := []string{string(KindStarted), string(KindCompleted), string(KindStarted)}
	for i, span := range spans {
		if span.Name != wantNames[i] {
			t.Errorf("span[%d] name = %q, want %q", i, span.Name, wantNames[i])
		}
	}
}

func TestOtelEmitter_EmitBatch_Empty(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOtelEmitter(otel.Tracer("test"))
	if err := emitter.EmitBatch(context.Background(), nil); err != nil {
		t.Fatalf("EmitBatch failed on empty batch: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 0 {
		t.Errorf("expected 0 spans, got %d", got)
	}
}

func TestOtelEmitter_Flush(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOtelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{RunID: "run-001", Seq: 1, NodeID: "nodeA", Kind: KindStarted})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := emitter.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if got := len(exporter.GetSpans()); got != 1 {
		t.Errorf("expected 1 span after flush, got %d", got)
	}
}

func TestOtelEmitter_MetadataTypes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOtelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{
		RunID:  "run-001",
		Seq:    1,
		NodeID: "nodeA",
		Kind:   KindToken,
		Payload: map[string]interface{}{
			"string_val":  "hello",
			"int_val":     42,
			"int64_val":   int64(99),
			"float64_val": 3.14,
			"bool_val":    true,
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attributeMap(spans[0].Attributes)
	if got := attrs["string_val"]; got != "hello" {
		t.Errorf("string_val = %v, want %q", got, "hello")
	}
	if got := attrs["int_val"]; got != int64(42) {
		t.Errorf("int_val = %v, want 42", got)
	}
	if got := attrs["int64_val"]; got != int64(99) {
		t.Errorf("int64_val = %v, want 99", got)
	}
	if got := attrs["float64_val"]; got != 3.14 {
		t.Errorf("float64_val = %v, want 3.14", got)
	}
	if got := attrs["bool_val"]; got != true {
		t.Errorf("bool_val = %v, want true", got)
	}
}

func TestOtelEmitter_NilPayload(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOtelEmitter(otel.Tracer("test"))
	emitter.Emit(Event{RunID: "run-001", Seq: 1, NodeID: "nodeA", Kind: KindStarted, Payload: nil})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attributeMap(spans[0].Attributes)
	if got := attrs["agentgraph.execution_id"]; got != "run-001" {
		t.Errorf("execution_id = %v, want %q", got, "run-001")
	}
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{})
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
