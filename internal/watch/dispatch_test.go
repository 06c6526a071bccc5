package watch_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/sentinel/internal/correlation"
)

// Not parallel: swaps the global tracer provider.
func TestDispatch_TaskSpanCarriesCorrelation(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	h := newHarness(t, nil)
	w := h.watchlist(t)

	ctx := correlation.WithID(context.Background(), "corr-span-1")
	ev, err := h.svc.CreateEvent(ctx, malwareInput(w.ID))
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	h.wait(t)

	var found bool
	for _, s := range exp.GetSpans() {
		if s.Name != "analysis.task" {
			continue
		}
		found = true
		attrs := map[attribute.Key]attribute.Value{}
		for _, kv := range s.Attributes {
			attrs[kv.Key] = kv.Value
		}
		if attrs["sentinel.event.id"].AsString() != ev.ID {
			t.Errorf("event id attr = %q, want %q", attrs["sentinel.event.id"].AsString(), ev.ID)
		}
		if attrs["sentinel.correlation.id"].AsString() != "corr-span-1" {
			t.Errorf("correlation attr = %q", attrs["sentinel.correlation.id"].AsString())
		}
		if attrs["sentinel.task.state"].AsString() != "succeeded" {
			t.Errorf("task state = %q, want succeeded", attrs["sentinel.task.state"].AsString())
		}
		if attrs["sentinel.analysis.severity"].AsString() != "HIGH" {
			t.Errorf("severity attr = %q, want HIGH", attrs["sentinel.analysis.severity"].AsString())
		}
		var running bool
		for _, e := range s.Events {
			if e.Name == "task.running" {
				running = true
			}
		}
		if !running {
			t.Error("span has no task.running event")
		}
	}
	if !found {
		t.Fatal("no analysis.task span recorded")
	}
}
