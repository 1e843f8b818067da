package echo

import (
	"context"
	"fmt"

	"github.com/emberio/hearth/internal/domain"
)

// RegisterPricing registers echo model pricing with the registry. Echo
// generations are free; the entry exists so cost lookups stay warning-free.
func RegisterPricing(ctx context.Context, registry domain.PricingRegistry) error {
	if err := registry.RegisterPricing(ctx, modelName, domain.PricingConfig{
		InputCostPer1K:  0,
		OutputCostPer1K: 0,
	}); err != nil {
		return fmt.Errorf("failed to register echo pricing: %w", err)
	}
	return nil
}
