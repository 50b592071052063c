package taskexec

import (
	"math"

	"github.com/soyeahso/taskweaver/internal/llm"
)

// CalculateCost estimates the cost of usage on model in hundredths of a
// currency unit, rounded to two decimals. Nil usage costs nothing.
func CalculateCost(usage *llm.Usage, model string) float64 {
	if usage == nil {
		return 0
	}
	p := PricingFor(model)
	cost := float64(usage.PromptTokens)/1000*p.Input + float64(usage.CompletionTokens)/1000*p.Output
	return round2(cost)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
