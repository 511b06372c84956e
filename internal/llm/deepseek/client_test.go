package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"reasongate-gateway/internal/llm"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(llm.ClientConfig{
		BaseURL:     url,
		Model:       DefaultModel,
		MaxRetries:  -1,
		BaseBackoff: time.Millisecond,
	}, "test-key", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(llm.ClientConfig{}, "key", zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected config validation error, got nil")
	}
	if _, err := New(llm.ClientConfig{BaseURL: "http://x", Model: "m"}, "", zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected missing api key error, got nil")
	}
}

func TestCompleteSuccess(t *testing.T) {
	t.Parallel()

	var gotReq providerChatRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != completionsPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Id", "abc")
		fmt.Fprint(w, `{
			"id":"r1","object":"chat.completion","created":1700000000,"model":"deepseek-reasoner",
			"choices":[{"index":0,"message":{"role":"assistant","content":"4","reasoning_content":"2+2 is 4"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30,
			         "prompt_cache_hit_tokens":4,"prompt_cache_miss_tokens":6,
			         "completion_tokens_details":{"reasoning_tokens":15}}
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "What is 2+2?"},
	}, llm.RequestConfig{Temperature: llm.Float64(0.3)})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected Authorization header: %s", gotAuth)
	}
	if gotReq.Stream {
		t.Fatalf("non-stream request should not set stream=true")
	}
	if gotReq.MaxTokens != llm.DefaultMaxTokens {
		t.Fatalf("expected default max_tokens %d, got %d", llm.DefaultMaxTokens, gotReq.MaxTokens)
	}
	if gotReq.Temperature == nil || *gotReq.Temperature != 0.3 {
		t.Fatalf("temperature not forwarded: %v", gotReq.Temperature)
	}

	if out.Reasoning == nil || *out.Reasoning != "2+2 is 4" {
		t.Fatalf("unexpected reasoning: %v", out.Reasoning)
	}
	want := llm.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30, ReasoningTokens: 15, CachedInputTokens: 4}
	if out.Usage == nil || *out.Usage != want {
		t.Fatalf("usage = %+v, want %+v", out.Usage, want)
	}
	if out.Raw.Status != http.StatusOK || out.Raw.Headers["x-request-id"] != "abc" {
		t.Fatalf("raw response not captured: %+v", out.Raw)
	}
}

func TestCompleteMissingReasoningIsNil(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"4"}}]}`)
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).Complete(context.Background(),
		[]llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.RequestConfig{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Reasoning != nil {
		t.Fatalf("expected nil reasoning, got %q", *out.Reasoning)
	}
	if out.Usage != nil {
		t.Fatalf("expected nil usage, got %+v", out.Usage)
	}
}

func TestCompleteUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"authentication_error"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(),
		[]llm.Message{{Role: llm.RoleUser, Content: "hi"}}, llm.RequestConfig{})

	var ue *llm.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Provider != ProviderName || ue.Code != http.StatusUnauthorized || ue.Message != "bad key" {
		t.Fatalf("unexpected error: %+v", ue)
	}
}

func TestCompleteValidationError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("server should not be called for invalid request")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), nil, llm.RequestConfig{})
	if err == nil || !strings.Contains(err.Error(), "invalid request") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStreamChatReasoningPresence(t *testing.T) {
	t.Parallel()

	var gotReq providerChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("unmarshal body: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Errorf("response writer does not support flushing")
			return
		}

		chunks := []string{
			`{"choices":[{"index":0,"delta":{"role":"assistant","reasoning_content":""}}]}`,
			`{"choices":[{"index":0,"delta":{"reasoning_content":"Think"}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
			`{"choices":[{"index":0,"delta":{"content":"answer","reasoning_content":null}}]}`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := newTestClient(t, srv.URL).StreamChat(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: "hello"}}, llm.RequestConfig{})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	var chunks []*llm.StreamChunk
	for res := range stream {
		if res.Err != nil {
			t.Fatalf("received stream error: %v", res.Err)
		}
		chunks = append(chunks, res.Chunk)
	}

	if !gotReq.Stream || gotReq.StreamOptions == nil || !gotReq.StreamOptions.IncludeUsage {
		t.Fatalf("stream requests must set stream=true and include usage: %+v", gotReq)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	if chunks[0].Reasoning == nil || *chunks[0].Reasoning != "" {
		t.Fatalf("chunk 0: expected present empty reasoning, got %v", chunks[0].Reasoning)
	}
	if chunks[1].Reasoning == nil || *chunks[1].Reasoning != "Think" {
		t.Fatalf("chunk 1: unexpected reasoning %v", chunks[1].Reasoning)
	}
	if chunks[2].Kind != llm.EventMessageDelta || chunks[2].Usage == nil || chunks[2].Usage.TotalTokens != 5 {
		t.Fatalf("chunk 2: expected usage-only message_delta, got %+v", chunks[2])
	}
	if chunks[3].Kind != llm.EventDelta || chunks[3].Reasoning != nil || chunks[3].Text != "answer" {
		t.Fatalf("chunk 3: expected absent reasoning, got %+v", chunks[3])
	}
}

func TestStreamChatConnectError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "nope")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).StreamChat(context.Background(),
		[]llm.Message{{Role: llm.RoleUser, Content: "hello"}}, llm.RequestConfig{})

	var ue *llm.UpstreamError
	if !errors.As(err, &ue) || ue.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 UpstreamError, got %v", err)
	}
}

func TestStreamChatStopsOnCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"reasoning_content\":\"a\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := newTestClient(t, srv.URL).StreamChat(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: "hello"}}, llm.RequestConfig{})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	first := <-stream
	if first.Chunk == nil {
		t.Fatalf("expected first chunk, got %+v", first)
	}
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("stream did not close after cancel")
		}
	}
}

func TestStreamChatReportsUpstreamTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"reasoning_content\":\"a\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL)
	c.cfg.UpstreamTimeout = 200 * time.Millisecond

	stream, err := c.StreamChat(context.Background(),
		[]llm.Message{{Role: llm.RoleUser, Content: "hello"}}, llm.RequestConfig{})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	var results []llm.StreamResult
	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case res, ok := <-stream:
			if !ok {
				done = true
				break
			}
			results = append(results, res)
		case <-deadline:
			t.Fatalf("stream did not close after the upstream timeout")
		}
	}

	if len(results) != 2 || results[0].Chunk == nil {
		t.Fatalf("expected one chunk then an error, got %+v", results)
	}
	var ue *llm.UpstreamError
	if !errors.As(results[1].Err, &ue) || ue.Provider != ProviderName {
		t.Fatalf("expected deepseek UpstreamError, got %v", results[1].Err)
	}
	if !errors.Is(results[1].Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in error chain, got %v", results[1].Err)
	}
}
