package pricing

import (
	"fmt"
	"strconv"
)

// Redis hash field names, one per price.
const (
	FieldReasonerCacheHit  = "provider_a:input_cache_hit_price"
	FieldReasonerCacheMiss = "provider_a:input_cache_miss_price"
	FieldReasonerOutput    = "provider_a:output_price"
	FieldAnswerInput       = "provider_b:input_price"
	FieldAnswerOutput      = "provider_b:output_price"
)

// Fields flattens t into hash fields.
func Fields(t Table) map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return map[string]string{
		FieldReasonerCacheHit:  f(t.ProviderA.InputCacheHitPrice),
		FieldReasonerCacheMiss: f(t.ProviderA.InputCacheMissPrice),
		FieldReasonerOutput:    f(t.ProviderA.OutputPrice),
		FieldAnswerInput:       f(t.ProviderB.InputPrice),
		FieldAnswerOutput:      f(t.ProviderB.OutputPrice),
	}
}

// ParseFields overlays the hash fields present in fields onto base.
// Unknown fields are ignored.
func ParseFields(fields map[string]string, base Table) (Table, error) {
	out := base
	targets := map[string]*float64{
		FieldReasonerCacheHit:  &out.ProviderA.InputCacheHitPrice,
		FieldReasonerCacheMiss: &out.ProviderA.InputCacheMissPrice,
		FieldReasonerOutput:    &out.ProviderA.OutputPrice,
		FieldAnswerInput:       &out.ProviderB.InputPrice,
		FieldAnswerOutput:      &out.ProviderB.OutputPrice,
	}
	for name, dst := range targets {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Table{}, fmt.Errorf("pricing: field %s: %w", name, err)
		}
		*dst = v
	}
	if err := out.Validate(); err != nil {
		return Table{}, err
	}
	return out, nil
}
