package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"reasongate-gateway/internal/config"
)

func TestNormalizeOTLPEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input         string
		wantEndpoint  string
		wantInsecure  bool
		wantErrSubstr string
	}{
		{input: "collector:4318", wantEndpoint: "collector:4318"},
		{input: "http://collector:4318", wantEndpoint: "collector:4318", wantInsecure: true},
		{input: "https://collector:4318", wantEndpoint: "collector:4318"},
		{input: "ftp://collector:4318", wantErrSubstr: "scheme must be http or https"},
		{input: "  ", wantErrSubstr: "must not be empty"},
	}

	for _, tt := range tests {
		endpoint, insecure, err := normalizeOTLPEndpoint(tt.input)
		if tt.wantErrSubstr != "" {
			if err == nil || !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Fatalf("normalizeOTLPEndpoint(%q) error=%v, want %q", tt.input, err, tt.wantErrSubstr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("normalizeOTLPEndpoint(%q) error=%v", tt.input, err)
		}
		if endpoint != tt.wantEndpoint || insecure != tt.wantInsecure {
			t.Fatalf("normalizeOTLPEndpoint(%q)=(%q,%v), want (%q,%v)", tt.input, endpoint, insecure, tt.wantEndpoint, tt.wantInsecure)
		}
	}
}

func TestDisabledRuntimePassesThrough(t *testing.T) {
	t.Parallel()

	rt, err := Setup(context.Background(), config.OTelConfig{}, "test", nil)
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if rt.Enabled() {
		t.Fatalf("runtime must be disabled")
	}

	base := http.DefaultTransport
	if got := rt.WrapHTTPTransport(base); got != base {
		t.Fatalf("disabled runtime must return the base transport")
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	var nilRuntime *Runtime
	if nilRuntime.Enabled() || nilRuntime.Shutdown(context.Background()) != nil {
		t.Fatalf("nil runtime must be a no-op")
	}
}

func TestEnabledRuntimeRecordsServerSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	rt := &Runtime{enabled: true}
	h := rt.WrapHTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/chat", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "POST /v1/chat" {
		t.Fatalf("span name=%q", spans[0].Name())
	}
}
