package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emberio/hearth/internal/observability"
)

// OrchestratorConfig carries the orchestrator's behavior knobs, copied from
// process configuration at startup.
type OrchestratorConfig struct {
	CacheTTL        time.Duration
	CacheTaskTypes  []TaskType // empty = cache every task type
	FallbackEnabled bool
	CostOptimize    bool
}

// Orchestrator is the thin layer external callers use: it checks the cache,
// invokes the fallback engine on a miss, validates the output, writes the
// cache and returns. It also carries the operator-facing surface.
type Orchestrator struct {
	engine     Executor
	cache      ResponseCache
	registry   ProviderRegistry
	validator  OutputValidator
	degraded   DegradedFunc
	cfg        OrchestratorConfig
	cacheTasks map[TaskType]bool
}

// NewOrchestrator creates the orchestrating service (DI constructor).
// validator and degraded may be nil; without a degraded func, aggregate
// failures propagate to the caller.
func NewOrchestrator(
	engine Executor,
	cache ResponseCache,
	registry ProviderRegistry,
	validator OutputValidator,
	degraded DegradedFunc,
	cfg OrchestratorConfig,
) *Orchestrator {
	var cacheTasks map[TaskType]bool
	if len(cfg.CacheTaskTypes) > 0 {
		cacheTasks = make(map[TaskType]bool, len(cfg.CacheTaskTypes))
		for _, t := range cfg.CacheTaskTypes {
			cacheTasks[t] = true
		}
	}

	return &Orchestrator{
		engine:     engine,
		cache:      cache,
		registry:   registry,
		validator:  validator,
		degraded:   degraded,
		cfg:        cfg,
		cacheTasks: cacheTasks,
	}
}

// Execute handles one generation request end to end.
func (o *Orchestrator) Execute(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	logger := observability.FromContext(ctx)
	cacheable := o.cache != nil && o.cacheableTask(req.TaskType)
	key := CacheKey(req)

	if cacheable {
		cached, err := o.cache.Get(ctx, key)
		switch {
		case err == nil:
			logger.Info("cache hit, returning stored response",
				observability.String("cache_key", key))
			// Cached content was validated before it was stored; it is not
			// re-validated here.
			resp := cached.Clone()
			resp.Metadata["cache_hit"] = "true"
			return resp, nil
		case !errors.Is(err, ErrCacheMiss):
			logger.Warn("cache get failed, continuing without cache",
				observability.Error(err))
		}
	}

	resp, err := o.engine.Execute(ctx, req)
	if err != nil {
		var exhausted *FallbackExhaustedError
		if errors.As(err, &exhausted) && o.degraded != nil {
			logger.Warn("all providers exhausted, computing degraded result",
				observability.Int("attempts", len(exhausted.Attempts)))
			return o.degradedResult(ctx, req)
		}
		return nil, err
	}

	if o.validator != nil {
		if verr := o.validator.Validate(ctx, req.TaskType, resp.Content); verr != nil {
			logger.Error("model output failed validation",
				observability.String("provider", resp.Provider),
				observability.Error(verr))
			return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, verr)
		}
	}

	if cacheable {
		if serr := o.cache.Set(ctx, key, resp, o.cfg.CacheTTL); serr != nil {
			logger.Warn("failed to store response in cache",
				observability.Error(serr))
		}
	}

	return resp, nil
}

// ExecuteStream handles one streaming request. Streams bypass the cache.
func (o *Orchestrator) ExecuteStream(ctx context.Context, req *GenerationRequest) (<-chan StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	return o.engine.ExecuteStream(ctx, req)
}

// Statistics returns per-provider health, fallback configuration and cache
// statistics for operator tooling.
func (o *Orchestrator) Statistics(ctx context.Context) *Statistics {
	stats := &Statistics{
		Providers:       o.registry.Entries(ctx),
		FallbackEnabled: o.cfg.FallbackEnabled,
		CostOptimize:    o.cfg.CostOptimize,
	}
	if o.cache != nil {
		stats.Cache = o.cache.Stats(ctx)
	}
	return stats
}

// ResetMetrics zeroes every provider's health counters. Operator action.
func (o *Orchestrator) ResetMetrics(ctx context.Context) {
	for _, e := range o.registry.Entries(ctx) {
		if p, err := o.registry.Get(ctx, e.Name); err == nil {
			p.Health().Reset()
		}
	}
}

// SetProviderEnabled flips a provider's enabled flag. Operator action.
func (o *Orchestrator) SetProviderEnabled(ctx context.Context, name string, enabled bool) error {
	return o.registry.SetEnabled(ctx, name, enabled)
}

// Provider retrieves a provider by name.
func (o *Orchestrator) Provider(ctx context.Context, name string) (Provider, error) {
	return o.registry.Get(ctx, name)
}

func (o *Orchestrator) cacheableTask(task TaskType) bool {
	if o.cacheTasks == nil {
		return true
	}
	return o.cacheTasks[task]
}

func (o *Orchestrator) degradedResult(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	resp, err := o.degraded(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("degraded fallback failed: %w", err)
	}
	if resp.Metadata == nil {
		resp.Metadata = make(map[string]string, 1)
	}
	resp.Metadata["degraded"] = "true"
	return resp, nil
}

// CacheKey builds the composite cache key for a request: the task type plus
// a digest of the semantic inputs and the options that affect output shape.
// Static system instructions and caller identity are deliberately excluded;
// identical inputs from different callers share one entry.
func CacheKey(req *GenerationRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00", req.TaskType, req.Prompt, req.Model, req.Capability)
	fmt.Fprintf(h, "%.4f\x00%d\x00%.4f\x00%.4f\x00%.4f\x00",
		req.Temperature, req.MaxTokens, req.TopP, req.FrequencyPenalty, req.PresencePenalty)
	for _, stop := range req.StopSequences {
		fmt.Fprintf(h, "%s\x00", stop)
	}

	task := req.TaskType
	if task == "" {
		task = TaskGeneral
	}
	return fmt.Sprintf("%s:%s", task, hex.EncodeToString(h.Sum(nil)))
}
