package domain

import (
	"context"
	"errors"

	"github.com/emberio/hearth/internal/observability"
)

const tokensToPerK = 1000.0

// StandardCostCalculator implements standard token-based cost calculation.
type StandardCostCalculator struct {
	pricingRegistry PricingRegistry
}

// NewStandardCostCalculator creates a new cost calculator.
func NewStandardCostCalculator(registry PricingRegistry) *StandardCostCalculator {
	return &StandardCostCalculator{
		pricingRegistry: registry,
	}
}

// Calculate computes the total cost based on token usage and model pricing.
// Unknown models cost zero and log a warning; cost tracking must never abort
// a successful generation.
func (c *StandardCostCalculator) Calculate(
	ctx context.Context,
	model string,
	usage TokenUsage,
) (float64, error) {
	if model == "" {
		return 0, errors.New("model cannot be empty")
	}

	pricing, err := c.pricingRegistry.GetPricing(ctx, model)
	if err != nil {
		observability.FromContext(ctx).Warn("no pricing for model, recording zero cost",
			observability.String("model", model))
		return 0, nil
	}

	inputCost := float64(usage.PromptTokens) / tokensToPerK * pricing.InputCostPer1K
	outputCost := float64(usage.CompletionTokens) / tokensToPerK * pricing.OutputCostPer1K

	return inputCost + outputCost, nil
}
