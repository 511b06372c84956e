// Package gateway sequences the reasoning and answer providers into one
// response, either as a single document (Compose) or as an ordered stream
// of canonical events (Stream).
package gateway

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"reasongate-gateway/internal/llm"
	"reasongate-gateway/internal/metrics"
	"reasongate-gateway/internal/pricing"
	"reasongate-gateway/internal/usage"
)

const (
	// QueueCapacity bounds the events buffered between producer and consumer.
	QueueCapacity = 100

	ThinkingOpen  = "<thinking>\n"
	ThinkingClose = "\n</thinking>"

	// StreamErrorCode is reported in error events for any upstream failure.
	StreamErrorCode = 500

	modeComplete = "complete"
	modeStream   = "stream"
)

// Providers are the two roles of one request.
type Providers struct {
	A llm.Provider // reasoning
	B llm.Provider // answer
}

// Call is a validated request. Messages already include the system prompt.
type Call struct {
	Messages []llm.Message
	ConfigA  llm.RequestConfig
	ConfigB  llm.RequestConfig
	Verbose  bool
}

// Response is the non-streaming result.
type Response struct {
	Created       time.Time           `json:"created"`
	Content       []llm.ContentBlock  `json:"content"`
	CombinedUsage usage.CombinedUsage `json:"combined_usage"`
	RawProviderA  *llm.RawResponse    `json:"raw_provider_a,omitempty"`
	RawProviderB  *llm.RawResponse    `json:"raw_provider_b,omitempty"`
}

type Gateway struct {
	pricing pricing.Store
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Gateway)

// WithClock replaces time.Now for the created timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

func New(store pricing.Store, opts ...Option) *Gateway {
	g := &Gateway{
		pricing: store,
		tracer:  otel.Tracer("reasongate-gateway/internal/gateway"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.pricing == nil {
		g.pricing = pricing.NewMemoryStore(pricing.DefaultTable)
	}
	return g
}

// WrapReasoning surrounds a reasoning trace with the thinking delimiters.
func WrapReasoning(reasoning string) string {
	return ThinkingOpen + reasoning + ThinkingClose
}

// withReasoning copies messages and appends the wrapped trace as an
// assistant turn. The caller's slice is never modified.
func withReasoning(messages []llm.Message, wrapped string) []llm.Message {
	out := make([]llm.Message, len(messages), len(messages)+1)
	copy(out, messages)
	return append(out, llm.Message{Role: llm.RoleAssistant, Content: wrapped})
}

func (g *Gateway) priceTable(ctx context.Context) pricing.Table {
	t, err := g.pricing.Table(ctx)
	if err != nil {
		return pricing.DefaultTable
	}
	return t
}

func (g *Gateway) combine(ctx context.Context, a, b *llm.Usage, providers Providers) usage.CombinedUsage {
	combined := usage.Combine(a, b, g.priceTable(ctx))
	metrics.ObserveCost(providers.A.Name(), combined.CostA)
	metrics.ObserveCost(providers.B.Name(), combined.CostB)
	return combined
}

func recordCall(provider, mode string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case llm.IsCanceled(err):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	metrics.UpstreamCallsTotal.WithLabelValues(provider, mode, outcome).Inc()
}

// reasoningAccumulator collects reasoning deltas during one ReasoningRelay
// phase. It is owned by that phase and discarded with it.
type reasoningAccumulator struct {
	b strings.Builder
}

func (a *reasoningAccumulator) add(delta string) { a.b.WriteString(delta) }

func (a *reasoningAccumulator) wrapped() string { return WrapReasoning(a.b.String()) }
