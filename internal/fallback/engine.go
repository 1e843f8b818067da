// Package fallback implements the ordered-fallback execution engine. For
// each request it walks the enabled provider chain in priority order,
// skipping unavailable providers, racing each attempt against a timeout,
// and returning the first success or an aggregate failure carrying the full
// attempt log.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/emberio/hearth/internal/config"
	"github.com/emberio/hearth/internal/domain"
	"github.com/emberio/hearth/internal/observability"
)

// Engine walks the provider chain for one request at a time. Candidates are
// tried sequentially within a request, never in parallel, so a single
// logical request never pays for two providers at once. Requests themselves
// run fully concurrently.
type Engine struct {
	source  domain.ProviderRegistry
	calc    domain.CostCalculator
	cfg     config.FallbackConfig
	metrics *observability.Metrics
	events  domain.EventPublisher
}

// NewEngine creates the fallback engine (DI constructor).
func NewEngine(
	source domain.ProviderRegistry,
	calc domain.CostCalculator,
	cfg *config.Config,
	metrics *observability.Metrics,
	events domain.EventPublisher,
) *Engine {
	return &Engine{
		source:  source,
		calc:    calc,
		cfg:     cfg.Fallback,
		metrics: metrics,
		events:  events,
	}
}

// Execute walks the candidate list and returns the first success. On
// success the response metadata carries the number of failed attempts and
// the elapsed wall-clock time since the first attempt. When every candidate
// fails or is skipped, the returned error is *domain.FallbackExhaustedError.
// A context cancelled before any attempt was made surfaces as ctx.Err()
// instead.
func (e *Engine) Execute(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	candidates := e.candidates(ctx, req)
	attempts := make([]domain.Attempt, 0, len(candidates))
	start := time.Now()

	for _, p := range candidates {
		if ctx.Err() != nil {
			break
		}

		if !p.Available() {
			logger.Debug("skipping unavailable provider",
				observability.String("provider", p.Name()))
			continue
		}

		attemptStart := time.Now()
		resp, err := e.attempt(ctx, p, req)
		elapsed := time.Since(attemptStart)

		if err != nil {
			attempts = append(attempts, domain.Attempt{
				Provider: p.Name(),
				Error:    err.Error(),
				At:       attemptStart,
				Elapsed:  elapsed,
			})
			logger.Warn("provider attempt failed, trying next candidate",
				observability.String("provider", p.Name()),
				observability.Duration("elapsed", elapsed),
				observability.Error(err))
			e.events.Publish(ctx, "fallback.attempt_failed", map[string]interface{}{
				"provider": p.Name(),
				"error":    err.Error(),
			})
			continue
		}

		if resp.Metadata == nil {
			resp.Metadata = make(map[string]string, 2)
		}
		resp.Metadata["fallback_attempts"] = strconv.Itoa(len(attempts))
		resp.Metadata["fallback_elapsed_ms"] = strconv.FormatInt(time.Since(start).Milliseconds(), 10)

		return resp, nil
	}

	// A caller that cancelled before any attempt was made has not seen an
	// outage; reporting exhaustion here would be a lie.
	if len(attempts) == 0 && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.metrics.RecordFallbackExhausted()
	e.events.Publish(ctx, "fallback.exhausted", map[string]interface{}{
		"attempts": len(attempts),
	})

	return nil, &domain.FallbackExhaustedError{Attempts: attempts}
}

// ExecuteStream walks the same candidate list with one asymmetry: a
// candidate is abandoned only while zero fragments have reached the caller.
// Once any fragment has been delivered the engine never switches providers;
// a later failure propagates as a terminal stream error. Switching
// mid-stream would silently duplicate or garble output.
func (e *Engine) ExecuteStream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	out := make(chan domain.StreamChunk)
	go e.streamWalk(ctx, req, out)
	return out, nil
}

// candidates builds the ordered candidate list for one request. With
// fallback disabled the list collapses to the primary entry. When cost
// optimization is on and the request's tier is simple, cheaper providers
// are preferred; ordering is otherwise stable.
func (e *Engine) candidates(ctx context.Context, req *domain.GenerationRequest) []domain.Provider {
	candidates := e.source.Candidates(ctx)

	if !e.cfg.Enabled && len(candidates) > 1 {
		candidates = candidates[:1]
	}

	if !e.cfg.CostOptimize || req.Capability != domain.CapabilitySimple || req.Model != "" {
		return candidates
	}

	ordered := make([]domain.Provider, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return e.estimateCost(ctx, ordered[i]) < e.estimateCost(ctx, ordered[j])
	})
	return ordered
}

// estimateCost prices a nominal 1K-in/1K-out generation on the provider's
// simple-tier model.
func (e *Engine) estimateCost(ctx context.Context, p domain.Provider) float64 {
	model := p.ModelForCapability(domain.CapabilitySimple)
	cost, _ := e.calc.Calculate(ctx, model, domain.TokenUsage{
		PromptTokens:     1000,
		CompletionTokens: 1000,
		TotalTokens:      2000,
	})
	return cost
}

// attemptTimeout is the smaller of the request's explicit timeout and the
// configured per-attempt default.
func (e *Engine) attemptTimeout(req *domain.GenerationRequest) time.Duration {
	timeout := time.Duration(e.cfg.AttemptTimeoutSeconds) * time.Second
	if req.Timeout > 0 && req.Timeout < timeout {
		timeout = req.Timeout
	}
	return timeout
}

// attempt races one provider call against the per-attempt timeout. On
// timeout the in-flight call is abandoned; its eventual result is discarded
// and the provider records its own outcome when the cancelled call returns.
func (e *Engine) attempt(ctx context.Context, p domain.Provider, req *domain.GenerationRequest) (*domain.GenerationResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout(req))
	defer cancel()

	type result struct {
		resp *domain.GenerationResponse
		err  error
	}
	resCh := make(chan result, 1)

	go func() {
		resp, err := p.Generate(attemptCtx, req)
		resCh <- result{resp: resp, err: err}
	}()

	select {
	case r := <-resCh:
		return r.resp, r.err
	case <-attemptCtx.Done():
		return nil, &domain.ProviderError{
			Provider: p.Name(),
			Kind:     domain.ErrorKindTransient,
			Err:      fmt.Errorf("attempt timed out: %w", attemptCtx.Err()),
		}
	}
}

func (e *Engine) streamWalk(ctx context.Context, req *domain.GenerationRequest, out chan<- domain.StreamChunk) {
	defer close(out)

	logger := observability.FromContext(ctx)
	candidates := e.candidates(ctx, req)
	attempts := make([]domain.Attempt, 0, len(candidates))

	for _, p := range candidates {
		if ctx.Err() != nil {
			break
		}

		if !p.Available() {
			logger.Debug("skipping unavailable provider",
				observability.String("provider", p.Name()))
			continue
		}

		attemptStart := time.Now()
		attemptCtx, cancel := context.WithCancel(ctx)

		chunks, err := p.GenerateStream(attemptCtx, req)
		if err != nil {
			cancel()
			attempts = append(attempts, domain.Attempt{
				Provider: p.Name(),
				Error:    err.Error(),
				At:       attemptStart,
				Elapsed:  time.Since(attemptStart),
			})
			continue
		}

		delivered, relayErr := e.relay(ctx, chunks, out, e.attemptTimeout(req))
		cancel()

		if relayErr == nil {
			// Stream completed normally.
			return
		}

		if delivered {
			// Partial output already reached the caller; this failure is
			// terminal for the whole request.
			logger.Error("stream failed after partial delivery",
				observability.String("provider", p.Name()),
				observability.Error(relayErr))
			terminal := fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, relayErr)
			select {
			case out <- domain.StreamChunk{Err: terminal}:
			case <-ctx.Done():
			}
			return
		}

		attempts = append(attempts, domain.Attempt{
			Provider: p.Name(),
			Error:    relayErr.Error(),
			At:       attemptStart,
			Elapsed:  time.Since(attemptStart),
		})
		logger.Warn("stream attempt failed before first fragment, trying next candidate",
			observability.String("provider", p.Name()),
			observability.Error(relayErr))
	}

	// Cancelled before any attempt: the caller gave up, closing the stream
	// is the whole answer.
	if len(attempts) == 0 && ctx.Err() != nil {
		return
	}

	e.metrics.RecordFallbackExhausted()
	select {
	case out <- domain.StreamChunk{Err: &domain.FallbackExhaustedError{Attempts: attempts}}:
	case <-ctx.Done():
	}
}

// relay forwards chunks from one provider stream to the caller. It returns
// delivered=true once any fragment has been sent to out. A nil error means
// the stream ended normally with a Done chunk. The first-fragment wait is
// bounded by the attempt timeout; after that the stream may run as long as
// the backend keeps producing.
func (e *Engine) relay(
	ctx context.Context,
	chunks <-chan domain.StreamChunk,
	out chan<- domain.StreamChunk,
	firstFragmentTimeout time.Duration,
) (bool, error) {
	timer := time.NewTimer(firstFragmentTimeout)
	defer timer.Stop()

	delivered := false
	for {
		var chunk domain.StreamChunk
		var ok bool

		if delivered {
			select {
			case chunk, ok = <-chunks:
			case <-ctx.Done():
				return delivered, ctx.Err()
			}
		} else {
			select {
			case chunk, ok = <-chunks:
			case <-timer.C:
				return delivered, fmt.Errorf("no output within %s", firstFragmentTimeout)
			case <-ctx.Done():
				return delivered, ctx.Err()
			}
		}

		if !ok {
			return delivered, errors.New("stream closed without terminal chunk")
		}

		if chunk.Err != nil {
			return delivered, chunk.Err
		}

		select {
		case out <- chunk:
		case <-ctx.Done():
			return delivered, ctx.Err()
		}

		if chunk.Delta != "" {
			delivered = true
		}

		if chunk.Done {
			return delivered, nil
		}
	}
}
