// Package openai adapts any OpenAI-style chat completions backend to the
// domain.Provider contract using the official SDK. It handles conversion
// between domain types and SDK types, classifies backend failures, and
// records health and metrics on every call path.
package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/emberio/hearth/internal/domain"
	"github.com/emberio/hearth/internal/observability"
)

const (
	defaultName  = "openai"
	probeTimeout = 5 * time.Second
)

// Provider implements the domain.Provider interface for OpenAI-compatible
// backends.
type Provider struct {
	client  openai.Client
	name    string
	cfg     Config
	calc    domain.CostCalculator
	health  *domain.HealthTracker
	metrics *observability.Metrics
}

// NewProvider creates a new adapter. A provider whose configuration fails
// validation is constructed anyway but starts DISABLED; it stays that way
// until reconfigured.
func NewProvider(cfg Config, calc domain.CostCalculator, metrics *observability.Metrics) *Provider {
	name := cfg.Name
	if name == "" {
		name = defaultName
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.Timeout)*time.Second))
	}
	opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))

	p := &Provider{
		client:  openai.NewClient(opts...),
		name:    name,
		cfg:     cfg,
		calc:    calc,
		health:  domain.NewHealthTracker(),
		metrics: metrics,
	}

	if err := p.ValidateConfig(); err != nil {
		p.health.Disable(err.Error())
	} else {
		p.health.SetProbe(p.probe)
	}

	return p
}

// ValidateConfig reports whether the static configuration is usable.
func (p *Provider) ValidateConfig() error {
	if p.cfg.APIKey == "" {
		return errors.New("API key is required")
	}
	return nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Available consults in-memory health state; a live probe runs only when
// leaving a cooldown window.
func (p *Provider) Available() bool {
	return p.health.Available()
}

// Health exposes the provider's health tracker.
func (p *Provider) Health() *domain.HealthTracker {
	return p.health
}

// ModelForTask returns the default model for a task type.
func (p *Provider) ModelForTask(task domain.TaskType) string {
	if model, ok := taskModels[task]; ok {
		return model
	}
	return p.cfg.DefaultModel
}

// ModelForCapability returns the default model for a capability tier.
func (p *Provider) ModelForCapability(tier domain.Capability) string {
	if model, ok := tierModels[tier]; ok {
		return model
	}
	return p.cfg.DefaultModel
}

// Generate sends one synchronous completion request.
func (p *Provider) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	params := p.toSDKParams(req)

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)

	if err != nil {
		perr := p.classify(err)
		p.recordFailure(perr, latency)
		logger.Error("completion call failed",
			observability.String("provider", p.name),
			observability.String("kind", perr.Kind.String()),
			observability.Error(err))
		return nil, perr
	}

	out := p.toDomainResponse(ctx, resp, latency)
	p.recordSuccess(latency, out.Usage, out.Cost)

	logger.Debug("completion call succeeded",
		observability.String("provider", p.name),
		observability.Int("total_tokens", out.Usage.TotalTokens),
		observability.Float64("cost", out.Cost))

	return out, nil
}

// GenerateStream yields partial output incrementally. A mid-stream backend
// failure is surfaced as a terminal chunk with Err set; the channel is
// always closed after a Done or Err chunk, never silently truncated.
func (p *Provider) GenerateStream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	params := p.toSDKParams(req)
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	chunks := make(chan domain.StreamChunk)

	go func() {
		defer close(chunks)

		start := time.Now()
		var usage domain.TokenUsage
		sawDone := false

		for stream.Next() {
			chunk := stream.Current()

			if chunk.Usage.TotalTokens > 0 {
				usage = domain.TokenUsage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}

			delta := chunk.Choices[0].Delta.Content
			done := chunk.Choices[0].FinishReason != ""

			select {
			case chunks <- domain.StreamChunk{Delta: delta, Done: done}:
			case <-ctx.Done():
				perr := p.classify(ctx.Err())
				p.recordFailure(perr, time.Since(start))
				return
			}

			if done {
				sawDone = true
				break
			}
		}

		latency := time.Since(start)

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			perr := p.classify(err)
			p.recordFailure(perr, latency)
			select {
			case chunks <- domain.StreamChunk{Err: perr}:
			case <-ctx.Done():
			}
			return
		}

		if !sawDone {
			select {
			case chunks <- domain.StreamChunk{Done: true}:
			case <-ctx.Done():
				perr := p.classify(ctx.Err())
				p.recordFailure(perr, latency)
				return
			}
		}

		model := p.resolveModel(req)
		cost, _ := p.calc.Calculate(ctx, model, usage)
		p.recordSuccess(latency, usage, cost)
	}()

	return chunks, nil
}

// probe checks backend reachability when the provider leaves a cooldown.
func (p *Provider) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	_, err := p.client.Models.List(ctx)
	return err == nil
}

// resolveModel picks the model for a request. An explicit model always wins
// over task-type and capability defaults.
func (p *Provider) resolveModel(req *domain.GenerationRequest) string {
	switch {
	case req.Model != "":
		return req.Model
	case req.TaskType != "":
		return p.ModelForTask(req.TaskType)
	case req.Capability != "":
		return p.ModelForCapability(req.Capability)
	default:
		return p.cfg.DefaultModel
	}
}

// classify maps an SDK error to the failure taxonomy.
func (p *Provider) classify(err error) *domain.ProviderError {
	kind := domain.ErrorKindTransient

	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			kind = domain.ErrorKindRateLimit
		case apiErr.StatusCode == http.StatusUnauthorized,
			apiErr.StatusCode == http.StatusForbidden:
			kind = domain.ErrorKindFatal
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			kind = domain.ErrorKindFatal
		}
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = domain.ErrorKindTransient
	}

	return &domain.ProviderError{Provider: p.name, Kind: kind, Err: err}
}

func (p *Provider) recordSuccess(latency time.Duration, usage domain.TokenUsage, cost float64) {
	p.health.RecordSuccess(latency, usage, cost)
	p.metrics.RecordAttempt(p.name, "success", latency)
	p.metrics.RecordCost(p.name, cost)
	p.metrics.SetProviderStatus(p.name, string(p.health.Snapshot().Status))
}

func (p *Provider) recordFailure(perr *domain.ProviderError, latency time.Duration) {
	p.health.RecordFailure(perr.Kind, perr, latency)
	p.metrics.RecordAttempt(p.name, perr.Kind.String(), latency)
	p.metrics.SetProviderStatus(p.name, string(p.health.Snapshot().Status))
}

// toSDKParams converts a domain request to SDK ChatCompletionNewParams.
func (p *Provider) toSDKParams(req *domain.GenerationRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.resolveModel(req)),
		Messages: messages,
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.FrequencyPenalty != 0 {
		params.FrequencyPenalty = openai.Float(req.FrequencyPenalty)
	}
	if req.PresencePenalty != 0 {
		params.PresencePenalty = openai.Float(req.PresencePenalty)
	}
	if len(req.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: req.StopSequences,
		}
	}

	return params
}

// toDomainResponse converts an SDK response to a domain response.
func (p *Provider) toDomainResponse(
	ctx context.Context,
	resp *openai.ChatCompletion,
	latency time.Duration,
) *domain.GenerationResponse {
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	usage := domain.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}

	cost, _ := p.calc.Calculate(ctx, string(resp.Model), usage)

	return &domain.GenerationResponse{
		ID:         resp.ID,
		Content:    content,
		Model:      string(resp.Model),
		Provider:   p.name,
		Usage:      usage,
		Cost:       cost,
		LatencyMs:  latency.Milliseconds(),
		Metadata:   map[string]string{},
		FinishTime: time.Now(),
	}
}
