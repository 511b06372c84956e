package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	if got := FromContext(context.Background()); got != DefaultLogger() {
		t.Fatalf("expected default logger when none attached")
	}
}

func TestWithFieldsAttachesToContextLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithFields(ctx, zap.String("request_id", "req-1"))

	L(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if v := entries[0].ContextMap()["request_id"]; v != "req-1" {
		t.Fatalf("expected request_id field, got %v", v)
	}
}

func TestIsDevelopment(t *testing.T) {
	cases := map[string]bool{
		"dev":         true,
		"Development": true,
		"local":       true,
		"prod":        false,
		"":            false,
	}
	for env, want := range cases {
		if got := isDevelopment(env); got != want {
			t.Errorf("isDevelopment(%q) = %v, want %v", env, got, want)
		}
	}
}
