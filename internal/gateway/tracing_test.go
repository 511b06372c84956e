package gateway

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"reasongate-gateway/internal/llm"
	"reasongate-gateway/internal/pricing"
)

func newTracedGateway(t *testing.T) (*Gateway, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	gw := New(pricing.NewMemoryStore(pricing.DefaultTable),
		WithClock(func() time.Time { return fixedNow }),
		WithTracer(provider.Tracer("test")),
	)
	return gw, recorder
}

func spanStatus(t *testing.T, recorder *tracetest.SpanRecorder, name string) codes.Code {
	t.Helper()
	for _, s := range recorder.Ended() {
		if s.Name() == name {
			return s.Status().Code
		}
	}
	t.Fatalf("span %q not recorded", name)
	return codes.Unset
}

func TestStreamSpans(t *testing.T) {
	t.Parallel()

	gw, recorder := newTracedGateway(t)
	a := &fakeProvider{name: "a", chunks: []llm.StreamResult{reasoningChunk("r"), answerChunk("")}}
	b := &fakeProvider{name: "b", chunks: []llm.StreamResult{contentDelta("4")}}

	collect(t, gw.Stream(context.Background(), Providers{A: a, B: b}, userCall()))

	for _, name := range []string{"gateway.stream", "gateway.reasoning_relay", "gateway.answer_relay"} {
		if got := spanStatus(t, recorder, name); got != codes.Unset {
			t.Fatalf("%s: expected unset status, got %v", name, got)
		}
	}
}

func TestStreamSpanStatusOnDeadline(t *testing.T) {
	t.Parallel()

	gw, recorder := newTracedGateway(t)
	a := &fakeProvider{name: "a", block: true, chunks: []llm.StreamResult{reasoningChunk("r")}}
	b := &fakeProvider{name: "b"}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	collect(t, gw.Stream(ctx, Providers{A: a, B: b}, userCall()))

	if got := spanStatus(t, recorder, "gateway.stream"); got != codes.Error {
		t.Fatalf("expected error status after the deadline, got %v", got)
	}
}

func TestStreamSpanStatusOnCancel(t *testing.T) {
	t.Parallel()

	gw, recorder := newTracedGateway(t)
	a := &fakeProvider{name: "a", block: true, chunks: []llm.StreamResult{reasoningChunk("r")}}
	b := &fakeProvider{name: "b"}

	ctx, cancel := context.WithCancel(context.Background())
	events := gw.Stream(ctx, Providers{A: a, B: b}, userCall())
	for i := 0; i < 3; i++ {
		<-events
	}
	cancel()
	collect(t, events)

	if got := spanStatus(t, recorder, "gateway.stream"); got != codes.Unset {
		t.Fatalf("a consumer cancel must not mark the span failed, got %v", got)
	}
}

func TestComposeSpanStatusOnFailure(t *testing.T) {
	t.Parallel()

	gw, recorder := newTracedGateway(t)
	a := &fakeProvider{name: "a", completeErr: llm.StatusError("a", 503, "unavailable")}
	b := &fakeProvider{name: "b"}

	if _, err := gw.Compose(context.Background(), Providers{A: a, B: b}, userCall()); err == nil {
		t.Fatalf("expected provider A error")
	}
	if got := spanStatus(t, recorder, "gateway.compose"); got != codes.Error {
		t.Fatalf("expected error status, got %v", got)
	}
}
