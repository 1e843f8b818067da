package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberio/hearth/internal/domain"
	internalhttp "github.com/emberio/hearth/internal/http"
	"github.com/emberio/hearth/internal/provider/echo"
	"github.com/emberio/hearth/internal/provider/registry"
)

// stubEngine is a scriptable Executor for handler tests.
type stubEngine struct {
	executeFunc func(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResponse, error)
	streamFunc  func(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error)
}

func (s *stubEngine) Execute(ctx context.Context, req *domain.GenerationRequest) (*domain.GenerationResponse, error) {
	if s.executeFunc != nil {
		return s.executeFunc(ctx, req)
	}
	return &domain.GenerationResponse{
		ID:       "resp-1",
		Content:  "generated text",
		Model:    "gpt-4-turbo",
		Provider: "openai",
		Usage:    domain.TokenUsage{TotalTokens: 30},
	}, nil
}

func (s *stubEngine) ExecuteStream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	if s.streamFunc != nil {
		return s.streamFunc(ctx, req)
	}
	chunks := make(chan domain.StreamChunk)
	go func() {
		defer close(chunks)
		chunks <- domain.StreamChunk{Delta: "generated "}
		chunks <- domain.StreamChunk{Delta: "text"}
		chunks <- domain.StreamChunk{Done: true}
	}()
	return chunks, nil
}

func newTestHandler(t *testing.T, engine domain.Executor) (*internalhttp.Handler, domain.ProviderRegistry) {
	t.Helper()

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(context.Background(), echo.NewProvider(nil), 1, 10))

	orch := domain.NewOrchestrator(engine, nil, reg, nil, nil, domain.OrchestratorConfig{FallbackEnabled: true})
	return internalhttp.NewHandler(orch), reg
}

func TestHandler_HandleGenerate(t *testing.T) {
	t.Run("should return the generated response", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubEngine{})

		req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"prompt":"Hello"}`))
		rec := httptest.NewRecorder()
		handler.HandleGenerate(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp domain.GenerationResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Equal(t, "generated text", resp.Content)
		require.Equal(t, "openai", resp.Provider)
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubEngine{})

		req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{not json`))
		rec := httptest.NewRecorder()
		handler.HandleGenerate(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should reject empty prompt with 400", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubEngine{})

		req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"prompt":"  "}`))
		rec := httptest.NewRecorder()
		handler.HandleGenerate(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "rejected")
	})

	t.Run("should map exhaustion to 503 without leaking provider errors", func(t *testing.T) {
		engine := &stubEngine{
			executeFunc: func(_ context.Context, _ *domain.GenerationRequest) (*domain.GenerationResponse, error) {
				return nil, &domain.FallbackExhaustedError{Attempts: []domain.Attempt{
					{Provider: "openai", Error: "api key sk-secret was rejected"},
				}}
			},
		}
		handler, _ := newTestHandler(t, engine)

		req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"prompt":"Hello"}`))
		rec := httptest.NewRecorder()
		handler.HandleGenerate(rec, req)

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Contains(t, rec.Body.String(), "retry later")
		require.NotContains(t, rec.Body.String(), "sk-secret")
	})

	t.Run("should map invalid output to 502", func(t *testing.T) {
		engine := &stubEngine{
			executeFunc: func(_ context.Context, _ *domain.GenerationRequest) (*domain.GenerationResponse, error) {
				return nil, domain.ErrInvalidOutput
			},
		}
		handler, _ := newTestHandler(t, engine)

		req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"prompt":"Hello"}`))
		rec := httptest.NewRecorder()
		handler.HandleGenerate(rec, req)

		require.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("should map unexpected errors to 500", func(t *testing.T) {
		engine := &stubEngine{
			executeFunc: func(_ context.Context, _ *domain.GenerationRequest) (*domain.GenerationResponse, error) {
				return nil, errors.New("database on fire")
			},
		}
		handler, _ := newTestHandler(t, engine)

		req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"prompt":"Hello"}`))
		rec := httptest.NewRecorder()
		handler.HandleGenerate(rec, req)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.NotContains(t, rec.Body.String(), "database")
	})
}

func TestHandler_HandleGenerateStream(t *testing.T) {
	t.Run("should stream deltas as SSE and finish with done", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubEngine{})

		req := httptest.NewRequest(http.MethodPost, "/v1/generate/stream", strings.NewReader(`{"prompt":"Hello"}`))
		rec := httptest.NewRecorder()
		handler.HandleGenerateStream(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		require.Contains(t, body, `data: {"delta":"generated "}`)
		require.Contains(t, body, `data: {"delta":"text"}`)
		require.Contains(t, body, `data: {"done":"true"}`)
	})

	t.Run("should emit a sanitized error event on interruption", func(t *testing.T) {
		engine := &stubEngine{
			streamFunc: func(_ context.Context, _ *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
				chunks := make(chan domain.StreamChunk)
				go func() {
					defer close(chunks)
					chunks <- domain.StreamChunk{Delta: "partial "}
					chunks <- domain.StreamChunk{Err: domain.ErrStreamInterrupted}
				}()
				return chunks, nil
			},
		}
		handler, _ := newTestHandler(t, engine)

		req := httptest.NewRequest(http.MethodPost, "/v1/generate/stream", strings.NewReader(`{"prompt":"Hello"}`))
		rec := httptest.NewRecorder()
		handler.HandleGenerateStream(rec, req)

		body := rec.Body.String()
		require.Contains(t, body, `"delta":"partial "`)
		require.Contains(t, body, "stream interrupted")
	})
}

func TestHandler_Admin(t *testing.T) {
	t.Run("should report statistics", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubEngine{})

		req := httptest.NewRequest(http.MethodGet, "/admin/statistics", nil)
		rec := httptest.NewRecorder()
		handler.HandleStatistics(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var stats domain.Statistics
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
		require.Len(t, stats.Providers, 1)
		require.Equal(t, "echo", stats.Providers[0].Name)
		require.True(t, stats.FallbackEnabled)
	})

	t.Run("should disable a provider by name", func(t *testing.T) {
		handler, reg := newTestHandler(t, &stubEngine{})

		req := httptest.NewRequest(http.MethodPost, "/admin/providers/echo/enabled", strings.NewReader(`{"enabled":false}`))
		req.SetPathValue("name", "echo")
		rec := httptest.NewRecorder()
		handler.HandleSetProviderEnabled(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, reg.Candidates(context.Background()))
	})

	t.Run("should return 404 for unknown providers", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubEngine{})

		req := httptest.NewRequest(http.MethodPost, "/admin/providers/nonexistent/enabled", strings.NewReader(`{"enabled":false}`))
		req.SetPathValue("name", "nonexistent")
		rec := httptest.NewRecorder()
		handler.HandleSetProviderEnabled(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should reset provider health counters", func(t *testing.T) {
		handler, reg := newTestHandler(t, &stubEngine{})

		p, err := reg.Get(context.Background(), "echo")
		require.NoError(t, err)
		p.Health().RecordFailure(domain.ErrorKindTransient, errors.New("boom"), 0)

		req := httptest.NewRequest(http.MethodPost, "/admin/metrics/reset", nil)
		rec := httptest.NewRecorder()
		handler.HandleResetMetrics(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, int64(0), p.Health().Snapshot().FailureCount)
	})

	t.Run("should report liveness", func(t *testing.T) {
		handler, _ := newTestHandler(t, &stubEngine{})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		handler.HandleHealth(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "ok")
	})
}
