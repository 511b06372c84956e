// Package usage turns provider token counts into costs and the combined
// usage record returned to callers.
package usage

import (
	"fmt"

	"reasongate-gateway/internal/llm"
	"reasongate-gateway/internal/pricing"
)

const perMillion = 1_000_000.0

// CostA prices a Provider A call. The cache-miss term is clamped at zero when
// a provider reports more cached tokens than input tokens.
func CostA(u llm.Usage, p pricing.ReasonerPrices) float64 {
	missed := 0.0
	if u.InputTokens > u.CachedInputTokens {
		missed = float64(u.InputTokens - u.CachedInputTokens)
	}
	return float64(u.CachedInputTokens)/perMillion*p.InputCacheHitPrice +
		missed/perMillion*p.InputCacheMissPrice +
		float64(u.OutputTokens)/perMillion*p.OutputPrice
}

// CostB prices a Provider B call.
func CostB(u llm.Usage, p pricing.AnswerPrices) float64 {
	return float64(u.InputTokens)/perMillion*p.InputPrice +
		float64(u.OutputTokens)/perMillion*p.OutputPrice
}

// FormatCost renders a dollar amount with three decimals.
func FormatCost(cost float64) string {
	return fmt.Sprintf("$%.3f", cost)
}

// ProviderUsage is the wire form of one provider's usage. The reasoning and
// cache fields are only set for Provider A.
type ProviderUsage struct {
	InputTokens       uint32  `json:"input_tokens"`
	OutputTokens      uint32  `json:"output_tokens"`
	ReasoningTokens   *uint32 `json:"reasoning_tokens,omitempty"`
	CachedInputTokens *uint32 `json:"cached_input_tokens,omitempty"`
	TotalTokens       uint32  `json:"total_tokens"`
	TotalCost         string  `json:"total_cost"`
}

type CombinedUsage struct {
	TotalCost string        `json:"total_cost"`
	ProviderA ProviderUsage `json:"provider_a_usage"`
	ProviderB ProviderUsage `json:"provider_b_usage"`

	// Unrounded costs, kept for metrics.
	CostA float64 `json:"-"`
	CostB float64 `json:"-"`
}

// Combine prices both calls. A nil usage counts as zero tokens. TotalCost is
// the rendering of the unrounded sum, not the sum of the rendered parts.
func Combine(a, b *llm.Usage, table pricing.Table) CombinedUsage {
	var ua, ub llm.Usage
	if a != nil {
		ua = *a
	}
	if b != nil {
		ub = *b
	}

	costA := CostA(ua, table.ProviderA)
	costB := CostB(ub, table.ProviderB)

	reasoning, cached := ua.ReasoningTokens, ua.CachedInputTokens
	return CombinedUsage{
		TotalCost: FormatCost(costA + costB),
		ProviderA: ProviderUsage{
			InputTokens:       ua.InputTokens,
			OutputTokens:      ua.OutputTokens,
			ReasoningTokens:   &reasoning,
			CachedInputTokens: &cached,
			TotalTokens:       ua.TotalTokens,
			TotalCost:         FormatCost(costA),
		},
		ProviderB: ProviderUsage{
			InputTokens:  ub.InputTokens,
			OutputTokens: ub.OutputTokens,
			TotalTokens:  ub.TotalTokens,
			TotalCost:    FormatCost(costB),
		},
		CostA: costA,
		CostB: costB,
	}
}
