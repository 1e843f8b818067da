package openai

import (
	"context"
	"fmt"

	"github.com/emberio/hearth/internal/domain"
)

const (
	// GPT-4 pricing per 1K tokens
	gpt4InputCostPer1K  = 0.03
	gpt4OutputCostPer1K = 0.06

	// GPT-4 Turbo pricing per 1K tokens
	gpt4TurboInputCostPer1K  = 0.01
	gpt4TurboOutputCostPer1K = 0.03

	// GPT-3.5 Turbo pricing per 1K tokens
	gpt35TurboInputCostPer1K  = 0.0005
	gpt35TurboOutputCostPer1K = 0.0015
)

// taskModels maps task types to their default model.
var taskModels = map[domain.TaskType]string{
	domain.TaskClassification:     "gpt-3.5-turbo",
	domain.TaskSummarization:      "gpt-3.5-turbo",
	domain.TaskAnalysis:           "gpt-4-turbo",
	domain.TaskQuestionGeneration: "gpt-4-turbo",
	domain.TaskGeneral:            "gpt-4-turbo",
}

// tierModels maps capability tiers to their default model.
var tierModels = map[domain.Capability]string{
	domain.CapabilitySimple:   "gpt-3.5-turbo",
	domain.CapabilityStandard: "gpt-4-turbo",
	domain.CapabilityComplex:  "gpt-4",
}

// RegisterPricing seeds the pricing registry with this adapter's models.
func RegisterPricing(ctx context.Context, registry domain.PricingRegistry) error {
	prices := map[string]domain.PricingConfig{
		"gpt-4":         {InputCostPer1K: gpt4InputCostPer1K, OutputCostPer1K: gpt4OutputCostPer1K},
		"gpt-4-turbo":   {InputCostPer1K: gpt4TurboInputCostPer1K, OutputCostPer1K: gpt4TurboOutputCostPer1K},
		"gpt-3.5-turbo": {InputCostPer1K: gpt35TurboInputCostPer1K, OutputCostPer1K: gpt35TurboOutputCostPer1K},
	}

	for model, cfg := range prices {
		if err := registry.RegisterPricing(ctx, model, cfg); err != nil {
			return fmt.Errorf("failed to register pricing for %s: %w", model, err)
		}
	}
	return nil
}
