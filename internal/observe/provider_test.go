package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestNewResource(t *testing.T) {
	res, err := newResource(ProviderConfig{ServiceVersion: "1.2.3", Environment: "field-test"})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	want := map[attribute.Key]string{
		"service.name":           "raaee",
		"service.version":        "1.2.3",
		"deployment.environment": "field-test",
	}
	got := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		got[kv.Key] = kv.Value.Emit()
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestNewTracerProvider_Sampling(t *testing.T) {
	res, err := newResource(ProviderConfig{})
	if err != nil {
		t.Fatal(err)
	}

	all := newTracerProvider(res, ProviderConfig{})
	t.Cleanup(func() { _ = all.Shutdown(context.Background()) })
	_, span := all.Tracer("test").Start(context.Background(), "root")
	if !span.SpanContext().IsSampled() {
		t.Error("zero ratio should sample every root span")
	}
	span.End()

	// A ratio this small never samples a fresh trace in practice, but a
	// sampled parent still wins.
	rare := newTracerProvider(res, ProviderConfig{SampleRatio: 1e-12})
	t.Cleanup(func() { _ = rare.Shutdown(context.Background()) })
	_, root := rare.Tracer("test").Start(context.Background(), "root")
	if root.SpanContext().IsSampled() {
		t.Error("root span sampled at ratio 1e-12")
	}
	root.End()

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), parent)
	_, child := rare.Tracer("test").Start(ctx, "child")
	if !child.SpanContext().IsSampled() {
		t.Error("child of a sampled remote parent was dropped")
	}
	child.End()
}
