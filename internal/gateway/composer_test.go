package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"reasongate-gateway/internal/llm"
	"reasongate-gateway/internal/pricing"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestGateway() *Gateway {
	return New(pricing.NewMemoryStore(pricing.DefaultTable), WithClock(func() time.Time { return fixedNow }))
}

func userCall() Call {
	return Call{Messages: []llm.Message{{Role: llm.RoleUser, Content: "What is 2+2?"}}}
}

func TestComposeMergesReasoningAndAnswer(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: "a", completion: &llm.Completion{
		Reasoning: llm.String("2+2 is 4"),
		Usage:     &llm.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
	}}
	b := &fakeProvider{name: "b", completion: &llm.Completion{
		Content: []llm.ContentBlock{llm.TextBlock("4")},
		Usage:   &llm.Usage{InputTokens: 30, OutputTokens: 1, TotalTokens: 31},
	}}

	call := userCall()
	resp, err := newTestGateway().Compose(context.Background(), Providers{A: a, B: b}, call)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if len(resp.Content) != 2 {
		t.Fatalf("expected 2 content blocks, got %+v", resp.Content)
	}
	if resp.Content[0] != llm.TextBlock("<thinking>\n2+2 is 4\n</thinking>") {
		t.Fatalf("unexpected reasoning block: %+v", resp.Content[0])
	}
	if resp.Content[1] != llm.TextBlock("4") {
		t.Fatalf("unexpected answer block: %+v", resp.Content[1])
	}
	if !resp.Created.Equal(fixedNow) {
		t.Fatalf("unexpected created: %v", resp.Created)
	}

	sent := b.messages()
	if len(sent) != 2 || sent[1].Role != llm.RoleAssistant || sent[1].Content != "<thinking>\n2+2 is 4\n</thinking>" {
		t.Fatalf("provider B did not receive the wrapped reasoning: %+v", sent)
	}
	if len(call.Messages) != 1 {
		t.Fatalf("caller messages were modified: %+v", call.Messages)
	}

	u := resp.CombinedUsage
	if u.ProviderA.InputTokens != 10 || u.ProviderB.OutputTokens != 1 {
		t.Fatalf("usage not mapped: %+v", u)
	}
	if resp.RawProviderA != nil || resp.RawProviderB != nil {
		t.Fatalf("raw responses must be omitted unless verbose")
	}
}

func TestComposeVerboseIncludesRaw(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: "a", completion: &llm.Completion{
		Reasoning: llm.String("think"),
		Raw:       llm.RawResponse{Status: http.StatusOK, Body: []byte(`{"a":1}`)},
	}}
	b := &fakeProvider{name: "b", completion: &llm.Completion{
		Content: []llm.ContentBlock{llm.TextBlock("ok")},
		Raw:     llm.RawResponse{Status: http.StatusOK, Body: []byte(`{"b":1}`)},
	}}

	call := userCall()
	call.Verbose = true
	resp, err := newTestGateway().Compose(context.Background(), Providers{A: a, B: b}, call)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if resp.RawProviderA == nil || string(resp.RawProviderA.Body) != `{"a":1}` {
		t.Fatalf("raw provider A missing: %+v", resp.RawProviderA)
	}
	if resp.RawProviderB == nil || string(resp.RawProviderB.Body) != `{"b":1}` {
		t.Fatalf("raw provider B missing: %+v", resp.RawProviderB)
	}
}

func TestComposeMissingProviderBUsageIsZero(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: "a", completion: &llm.Completion{Reasoning: llm.String("r")}}
	b := &fakeProvider{name: "b", completion: &llm.Completion{Content: []llm.ContentBlock{llm.TextBlock("x")}}}

	resp, err := newTestGateway().Compose(context.Background(), Providers{A: a, B: b}, userCall())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if resp.CombinedUsage.TotalCost != "$0.000" || resp.CombinedUsage.ProviderB.TotalTokens != 0 {
		t.Fatalf("expected zero usage, got %+v", resp.CombinedUsage)
	}
}

func TestComposeMissingReasoning(t *testing.T) {
	t.Parallel()

	for name, reasoning := range map[string]*string{
		"absent": nil,
		"empty":  llm.String(""),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a := &fakeProvider{name: "a", completion: &llm.Completion{Reasoning: reasoning}}
			b := &fakeProvider{name: "b"}

			_, err := newTestGateway().Compose(context.Background(), Providers{A: a, B: b}, userCall())
			if !errors.Is(err, ErrMissingReasoningContent) {
				t.Fatalf("expected ErrMissingReasoningContent, got %v", err)
			}
			if complete, stream := b.calls(); complete+stream != 0 {
				t.Fatalf("provider B must not be called, got %d calls", complete+stream)
			}
		})
	}
}

func TestComposeUpstreamErrorsAreTagged(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: "a", completeErr: errors.New("connection reset")}
	b := &fakeProvider{name: "b"}

	_, err := newTestGateway().Compose(context.Background(), Providers{A: a, B: b}, userCall())
	var ue *llm.UpstreamError
	if !errors.As(err, &ue) || ue.Provider != "a" {
		t.Fatalf("expected UpstreamError from a, got %v", err)
	}
	if complete, _ := b.calls(); complete != 0 {
		t.Fatalf("provider B must not be called after provider A failed")
	}

	a = &fakeProvider{name: "a", completion: &llm.Completion{Reasoning: llm.String("r")}}
	b = &fakeProvider{name: "b", completeErr: llm.StatusError("b", http.StatusTooManyRequests, "slow down")}

	_, err = newTestGateway().Compose(context.Background(), Providers{A: a, B: b}, userCall())
	if !errors.As(err, &ue) || ue.Provider != "b" || ue.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 UpstreamError from b, got %v", err)
	}
	if HTTPStatus(err) != http.StatusBadGateway {
		t.Fatalf("expected 502 for upstream error, got %d", HTTPStatus(err))
	}
}
