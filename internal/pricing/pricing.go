// Package pricing supplies the read-only price table used for cost
// accounting. Prices are USD per one million tokens.
package pricing

import (
	"context"
	"fmt"
)

// ReasonerPrices are the Provider A prices. Cached input tokens are billed at
// the cache-hit price, the remaining input at the cache-miss price.
type ReasonerPrices struct {
	InputCacheHitPrice  float64 `yaml:"input_cache_hit_price" json:"input_cache_hit_price"`
	InputCacheMissPrice float64 `yaml:"input_cache_miss_price" json:"input_cache_miss_price"`
	OutputPrice         float64 `yaml:"output_price" json:"output_price"`
}

// AnswerPrices are the Provider B prices.
type AnswerPrices struct {
	InputPrice  float64 `yaml:"input_price" json:"input_price"`
	OutputPrice float64 `yaml:"output_price" json:"output_price"`
}

type Table struct {
	ProviderA ReasonerPrices `yaml:"provider_a" json:"provider_a"`
	ProviderB AnswerPrices   `yaml:"provider_b" json:"provider_b"`
}

// DefaultTable holds list prices for deepseek-reasoner and Claude Sonnet.
var DefaultTable = Table{
	ProviderA: ReasonerPrices{
		InputCacheHitPrice:  0.14,
		InputCacheMissPrice: 0.55,
		OutputPrice:         2.19,
	},
	ProviderB: AnswerPrices{
		InputPrice:  3.0,
		OutputPrice: 15.0,
	},
}

// Validate rejects negative prices.
func (t Table) Validate() error {
	for name, v := range map[string]float64{
		"provider_a.input_cache_hit_price":  t.ProviderA.InputCacheHitPrice,
		"provider_a.input_cache_miss_price": t.ProviderA.InputCacheMissPrice,
		"provider_a.output_price":           t.ProviderA.OutputPrice,
		"provider_b.input_price":            t.ProviderB.InputPrice,
		"provider_b.output_price":           t.ProviderB.OutputPrice,
	} {
		if v < 0 {
			return fmt.Errorf("pricing: %s must not be negative, got %v", name, v)
		}
	}
	return nil
}

// Store is implemented by the static (memory) and Redis backends.
type Store interface {
	Table(ctx context.Context) (Table, error)
}
