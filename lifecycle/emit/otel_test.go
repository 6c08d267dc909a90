package emit

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*tracetest.InMemoryExporter, *OTelEmitter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, NewOTelEmitter(tp.Tracer("test"))
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitter_Emit(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{
		PassID:    "pass-1",
		Seq:       7,
		Stage:     "apply_model",
		ElementID: "field",
		Path:      "form.field",
		Msg:       MsgPhaseProcessed,
		Meta: map[string]interface{}{
			"successors":  3,
			"duration_ms": 25 * time.Millisecond,
			"widget":      "text",
		},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != MsgPhaseProcessed {
		t.Errorf("span name = %q", span.Name)
	}

	attrs := attributeMap(span.Attributes)
	checks := map[string]interface{}{
		"lifecycle.pass_id":     "pass-1",
		"lifecycle.seq":         int64(7),
		"lifecycle.stage":       "apply_model",
		"lifecycle.element_id":  "field",
		"lifecycle.path":        "form.field",
		"lifecycle.successors":  int64(3),
		"lifecycle.duration_ms": int64(25),
		"widget":                "text",
	}
	for key, want := range checks {
		if got := attrs[key]; got != want {
			t.Errorf("%s = %v (%T), want %v (%T)", key, got, got, want, want)
		}
	}
}

func TestOTelEmitter_PassEventOmitsPhaseAttributes(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{PassID: "pass-1", Seq: 1, Msg: MsgPassStart})

	attrs := attributeMap(exporter.GetSpans()[0].Attributes)
	if _, ok := attrs["lifecycle.stage"]; ok {
		t.Error("pass-level span carries a stage attribute")
	}
}

func TestOTelEmitter_ErrorStatus(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	emitter.Emit(Event{
		PassID: "pass-1",
		Msg:    MsgPhaseError,
		Stage:  "render",
		Meta:   map[string]interface{}{"error": "boom", "kind": "task_failure"},
	})

	span := exporter.GetSpans()[0]
	if span.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status.Code)
	}
	if span.Status.Description != "boom" {
		t.Errorf("status description = %q", span.Status.Description)
	}
	if len(span.Events) == 0 {
		t.Error("expected a recorded error event")
	}
	if got := attributeMap(span.Attributes)["lifecycle.error_kind"]; got != "task_failure" {
		t.Errorf("error kind = %v", got)
	}
}

func TestOTelEmitter_EmitBatch(t *testing.T) {
	exporter, emitter := newTestTracer(t)

	events := []Event{
		{PassID: "p", Seq: 1, Msg: MsgPassStart},
		{PassID: "p", Seq: 2, Msg: MsgPhaseStart, Stage: "initialize"},
		{PassID: "p", Seq: 3, Msg: MsgPassComplete},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if got := len(exporter.GetSpans()); got != 3 {
		t.Fatalf("expected 3 spans, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := emitter.EmitBatch(ctx, events); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestOTelEmitter_FlushWithoutSDKProvider(t *testing.T) {
	emitter := NewOTelEmitter(nil)
	if err := emitter.Flush(context.Background()); err != nil {
		t.Errorf("Flush: %v", err)
	}
}
