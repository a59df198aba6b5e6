package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/datagenie/internal/config"
)

func TestCost(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(Rates{
		"sonnet": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
	})

	tests := []struct {
		name  string
		model string
		usage Usage
		want  float64
	}{
		{"input and output", "sonnet", Usage{Input: 1_000_000, Output: 100_000}, 3.00 + 1.50},
		{"cache write", "sonnet", Usage{CacheWrite: 1_000_000}, 3.75},
		{"cache read", "sonnet", Usage{CacheRead: 1_000_000}, 0.30},
		{"zero", "sonnet", Usage{}, 0},
		{"unknown model", "llama3.1", Usage{Input: 1_000_000}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Cost(tt.model, tt.usage), 1e-9)
		})
	}
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())
	assert.True(t, calc.Known("claude-sonnet-4-5-20250929"))
	assert.True(t, calc.Known("gpt-4o-mini"))
	assert.False(t, calc.Known("llama3.1"))
}

func TestRatesFromConfig(t *testing.T) {
	t.Parallel()
	rates := RatesFromConfig(config.PricingConfig{Models: map[string]config.ModelPricing{
		"claude-sonnet-4-5-20250929": {Input: 2.00, Output: 10.00},
		"llama3.1":                   {Input: 0.01, Output: 0.02},
	}})

	sonnet := rates["claude-sonnet-4-5-20250929"]
	assert.Equal(t, 2.00, sonnet.Input)
	assert.Equal(t, 1.25, sonnet.CacheWriteMul, "overlay keeps cache multipliers")
	assert.Contains(t, rates, "llama3.1")
	assert.Contains(t, rates, "gpt-4o")
}
