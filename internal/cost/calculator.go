// Package cost attributes USD cost to oracle token usage.
package cost

import "github.com/sells-group/datagenie/internal/config"

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input         float64
	Output        float64
	CacheWriteMul float64
	CacheReadMul  float64
}

// Rates maps a model identifier to its pricing.
type Rates map[string]ModelRate

// Usage is the token accounting for one or more oracle calls.
type Usage struct {
	Input      int
	Output     int
	CacheWrite int
	CacheRead  int
}

// Calculator computes costs for oracle usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Cost returns the USD cost of usage against model. Unknown models cost 0.
func (c *Calculator) Cost(model string, u Usage) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	inCost := (float64(u.Input) / 1e6) * rate.Input
	outCost := (float64(u.Output) / 1e6) * rate.Output
	cwCost := (float64(u.CacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheRead) / 1e6) * rate.Input * rate.CacheReadMul
	return inCost + outCost + cwCost + crCost
}

// Known reports whether the calculator has pricing for model.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates[model]
	return ok
}

// DefaultRates returns built-in pricing for the hosted models the oracle
// supports. Local models are free and intentionally absent.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"claude-opus-4-6":            {Input: 15.00, Output: 75.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		"gpt-4o":                     {Input: 2.50, Output: 10.00, CacheReadMul: 0.5},
		"gpt-4o-mini":                {Input: 0.15, Output: 0.60, CacheReadMul: 0.5},
	}
}

// RatesFromConfig overlays configured pricing on the defaults.
func RatesFromConfig(p config.PricingConfig) Rates {
	rates := DefaultRates()
	for name, mp := range p.Models {
		r := rates[name]
		r.Input = mp.Input
		r.Output = mp.Output
		rates[name] = r
	}
	return rates
}
