package domain

import (
	"context"
	"time"
)

// Provider is the capability-uniform contract every backend adapter
// implements. Adapters record their own health and metrics before returning
// from Generate and GenerateStream.
type Provider interface {
	// Generate issues one synchronous call to the backend. Failures are
	// returned as *ProviderError so callers can classify them.
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)

	// GenerateStream yields partial output incrementally. The returned
	// channel is finite and not restartable; a mid-stream failure surfaces
	// as a chunk with Err set, never as silent truncation.
	GenerateStream(ctx context.Context, req *GenerationRequest) (<-chan StreamChunk, error)

	// Name returns the provider identifier.
	Name() string

	// Available is a cheap health probe. It consults in-memory state and
	// only performs a live probe when leaving a cooldown window.
	Available() bool

	// ModelForTask returns the default model for a task type.
	ModelForTask(task TaskType) string

	// ModelForCapability returns the default model for a capability tier.
	ModelForCapability(tier Capability) string

	// ValidateConfig reports whether the static configuration is usable.
	ValidateConfig() error

	// Health exposes the provider's health tracker.
	Health() *HealthTracker
}

// ProviderRegistry manages the fixed, priority-ordered provider chain.
type ProviderRegistry interface {
	// Register adds a provider with its priority rank and relative weight.
	Register(ctx context.Context, provider Provider, priority, weight int) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, name string) (Provider, error)

	// SetEnabled flips the operator-controlled enabled flag. Independent of
	// health status.
	SetEnabled(ctx context.Context, name string, enabled bool) error

	// Candidates returns enabled providers in ascending priority order.
	// Ordering among equal priorities follows registration order.
	Candidates(ctx context.Context) []Provider

	// Entries returns a snapshot of every registered provider.
	Entries(ctx context.Context) []RegistryEntry
}

// Executor is the fallback engine contract the orchestrator depends on.
type Executor interface {
	Execute(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)
	ExecuteStream(ctx context.Context, req *GenerationRequest) (<-chan StreamChunk, error)
}

// ResponseCache is a TTL-bounded key-value store sitting in front of the
// fallback engine. Keys carry no caller identity; identical inputs from
// different callers share entries.
type ResponseCache interface {
	// Get returns the cached response for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (*GenerationResponse, error)

	// Set stores a response. Concurrent sets for the same key are
	// whole-value replacements; last write wins.
	Set(ctx context.Context, key string, resp *GenerationResponse, ttl time.Duration) error

	// Stats returns hit/savings statistics.
	Stats(ctx context.Context) CacheStats

	// Reset drops all entries and zeroes statistics.
	Reset(ctx context.Context) error
}

// OutputValidator checks raw model output against the schema expected for a
// task type. Implemented by an external collaborator.
type OutputValidator interface {
	Validate(ctx context.Context, task TaskType, content string) error
}

// DegradedFunc computes a local, lower-quality substitute result when the
// fallback chain is fully exhausted.
type DegradedFunc func(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)

// CostCalculator calculates cost based on token usage.
type CostCalculator interface {
	// Calculate returns the total cost for a given model and usage.
	// Unknown models yield zero cost, never an error.
	Calculate(ctx context.Context, model string, usage TokenUsage) (float64, error)
}

// PricingRegistry maintains pricing information for models.
type PricingRegistry interface {
	// GetPricing returns pricing config for a model.
	GetPricing(ctx context.Context, model string) (PricingConfig, error)

	// RegisterPricing adds pricing for a model.
	RegisterPricing(ctx context.Context, model string, config PricingConfig) error
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}
