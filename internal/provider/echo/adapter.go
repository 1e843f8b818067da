// Package echo provides a deterministic in-process provider. It implements
// the domain.Provider interface without external calls, serving as a
// development backend, a test double, and the lowest-priority safety net in
// the fallback chain.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emberio/hearth/internal/domain"
	"github.com/emberio/hearth/internal/observability"
)

const (
	providerName = "echo"
	modelName    = "echo-1"
	chunkDelay   = 10 * time.Millisecond
)

// Provider implements the domain.Provider interface for echo testing.
type Provider struct {
	name    string
	health  *domain.HealthTracker
	metrics *observability.Metrics
}

// NewProvider creates a new echo provider. No configuration is required as
// this provider operates entirely in-memory. metrics may be nil.
func NewProvider(metrics *observability.Metrics) *Provider {
	return &Provider{
		name:    providerName,
		health:  domain.NewHealthTracker(),
		metrics: metrics,
	}
}

// Generate returns the echoed prompt as the completion.
func (p *Provider) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	start := time.Now()
	content := buildEchoContent(req)

	promptTokens := countTokens(req.Prompt)
	completionTokens := countTokens(content)
	usage := domain.TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}

	latency := time.Since(start)
	p.recordSuccess(latency, usage)

	return &domain.GenerationResponse{
		ID:         fmt.Sprintf("echo-%d", time.Now().UnixNano()),
		Content:    content,
		Model:      modelName,
		Provider:   p.name,
		Usage:      usage,
		Cost:       0,
		LatencyMs:  latency.Milliseconds(),
		Metadata:   map[string]string{},
		FinishTime: time.Now(),
	}, nil
}

// GenerateStream yields the echoed prompt word by word.
func (p *Provider) GenerateStream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	content := buildEchoContent(req)
	chunks := make(chan domain.StreamChunk)

	go func() {
		defer close(chunks)

		start := time.Now()
		words := strings.Fields(content)

		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}

			select {
			case <-ctx.Done():
				// The consumer may already be gone; never block on the
				// terminal chunk.
				select {
				case chunks <- domain.StreamChunk{Err: &domain.ProviderError{
					Provider: p.name,
					Kind:     domain.ErrorKindTransient,
					Err:      ctx.Err(),
				}}:
				case <-ctx.Done():
				}
				return
			case chunks <- domain.StreamChunk{Delta: delta}:
				time.Sleep(chunkDelay)
			}
		}

		select {
		case chunks <- domain.StreamChunk{Done: true}:
			tokens := countTokens(content)
			p.recordSuccess(time.Since(start), domain.TokenUsage{
				PromptTokens:     tokens,
				CompletionTokens: tokens,
				TotalTokens:      tokens * 2,
			})
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Available always reports true; there is no backend to fail.
func (p *Provider) Available() bool {
	return p.health.Available()
}

// ModelForTask returns the single echo model for any task.
func (p *Provider) ModelForTask(_ domain.TaskType) string {
	return modelName
}

// ModelForCapability returns the single echo model for any tier.
func (p *Provider) ModelForCapability(_ domain.Capability) string {
	return modelName
}

// ValidateConfig always succeeds; there is nothing to configure.
func (p *Provider) ValidateConfig() error {
	return nil
}

// Health exposes the provider's health tracker.
func (p *Provider) Health() *domain.HealthTracker {
	return p.health
}

func (p *Provider) recordSuccess(latency time.Duration, usage domain.TokenUsage) {
	p.health.RecordSuccess(latency, usage, 0)
	p.metrics.RecordAttempt(p.name, "success", latency)
	p.metrics.SetProviderStatus(p.name, string(p.health.Snapshot().Status))
}

// buildEchoContent constructs the echo response from the request.
func buildEchoContent(req *domain.GenerationRequest) string {
	var builder strings.Builder
	if req.SystemPrompt != "" {
		builder.WriteString(fmt.Sprintf("[system]: %s\n", req.SystemPrompt))
	}
	builder.WriteString(fmt.Sprintf("[user]: %s", req.Prompt))
	return builder.String()
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}
