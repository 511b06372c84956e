package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNewUpstreamErrorDoesNotModifyExisting(t *testing.T) {
	t.Parallel()

	orig := &UpstreamError{Message: "overloaded", Code: 529}
	wrapped := fmt.Errorf("read: %w", orig)

	err := NewUpstreamError("anthropic", wrapped)

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UpstreamError, got %T", err)
	}
	if ue == orig {
		t.Fatalf("expected a copy, got the original error")
	}
	if ue.Provider != "anthropic" || ue.Code != 529 || ue.Message != "overloaded" {
		t.Fatalf("unexpected copy %+v", ue)
	}
	if orig.Provider != "" {
		t.Fatalf("original error was modified: provider %q", orig.Provider)
	}
}

func TestNewUpstreamErrorKeepsProvider(t *testing.T) {
	t.Parallel()

	orig := StatusError("deepseek", 500, "")
	err := NewUpstreamError("gemini", orig)

	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Provider != "deepseek" {
		t.Fatalf("expected provider deepseek, got %v", err)
	}
	if ue.Message != "Internal Server Error" {
		t.Fatalf("unexpected message %q", ue.Message)
	}
}

func TestNewUpstreamErrorWrapsPlainError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewUpstreamError("deepseek", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected chain to keep the cause, got %v", err)
	}
	if err.Error() != "deepseek: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if NewUpstreamError("deepseek", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestStreamTimeout(t *testing.T) {
	t.Parallel()

	cfg := ClientConfig{UpstreamTimeout: time.Nanosecond}

	live, cancelLive := WithUpstreamTimeout(context.Background(), ClientConfig{UpstreamTimeout: time.Minute})
	defer cancelLive()
	if err := StreamTimeout("deepseek", context.Background(), live); err != nil {
		t.Fatalf("live context: expected nil, got %v", err)
	}

	expired, cancelExpired := WithUpstreamTimeout(context.Background(), cfg)
	defer cancelExpired()
	<-expired.Done()
	err := StreamTimeout("deepseek", context.Background(), expired)
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.Provider != "deepseek" {
		t.Fatalf("expired deadline: expected UpstreamError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in chain, got %v", err)
	}

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := WithUpstreamTimeout(parent, cfg)
	defer cancelChild()
	cancelParent()
	<-child.Done()
	if err := StreamTimeout("deepseek", parent, child); err != nil {
		t.Fatalf("cancelled parent: expected nil, got %v", err)
	}
}
