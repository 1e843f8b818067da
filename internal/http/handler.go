package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/emberio/hearth/internal/domain"
	"github.com/emberio/hearth/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	orchestrator *domain.Orchestrator
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(orchestrator *domain.Orchestrator) *Handler {
	return &Handler{
		orchestrator: orchestrator,
	}
}

// generateRequest is the wire form of a generation request. The timeout is
// carried in seconds; domain.GenerationRequest holds it as a duration.
type generateRequest struct {
	domain.GenerationRequest
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleGenerate processes generation requests.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var wire generateRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	req := wire.GenerationRequest
	if wire.TimeoutSeconds > 0 {
		req.Timeout = time.Duration(wire.TimeoutSeconds) * time.Second
	}

	ctx = observability.WithModel(ctx, req.Model)
	ctx = observability.WithTaskType(ctx, string(req.TaskType))

	logger := observability.FromContext(ctx)
	logger.Info("generation request received",
		zap.String("task_type", string(req.TaskType)),
		zap.Bool("stream", req.Stream),
	)

	if req.Stream {
		h.handleStream(ctx, w, &req)
		return
	}

	response, err := h.orchestrator.Execute(ctx, &req)
	if err != nil {
		logger.Error("generation failed", zap.Error(err))
		writeFailure(w, err)
		return
	}

	logger.Info("generation succeeded",
		zap.String("provider", response.Provider),
		zap.Int("tokens", response.Usage.TotalTokens),
		zap.Float64("cost", response.Cost),
	)

	writeJSON(w, http.StatusOK, response)
}

// HandleGenerateStream processes streaming generation requests over SSE.
func (h *Handler) HandleGenerateStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var wire generateRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	req := wire.GenerationRequest
	req.Stream = true
	if wire.TimeoutSeconds > 0 {
		req.Timeout = time.Duration(wire.TimeoutSeconds) * time.Second
	}

	ctx = observability.WithTaskType(ctx, string(req.TaskType))
	h.handleStream(ctx, w, &req)
}

func (h *Handler) handleStream(ctx context.Context, w http.ResponseWriter, req *domain.GenerationRequest) {
	logger := observability.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming not supported"})
		return
	}

	chunks, err := h.orchestrator.ExecuteStream(ctx, req)
	if err != nil {
		logger.Error("stream failed to start", zap.Error(err))
		writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for chunk := range chunks {
		if chunk.Err != nil {
			logger.Error("stream terminated with error", zap.Error(chunk.Err))
			writeSSE(w, flusher, map[string]string{"error": publicMessage(chunk.Err)})
			return
		}

		if chunk.Delta != "" {
			writeSSE(w, flusher, map[string]string{"delta": chunk.Delta})
		}

		if chunk.Done {
			writeSSE(w, flusher, map[string]string{"done": "true"})
			return
		}
	}
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleStatistics returns per-provider health and cache statistics.
func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.Statistics(r.Context()))
}

// HandleResetMetrics zeroes all provider health counters.
func (h *Handler) HandleResetMetrics(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.ResetMetrics(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleSetProviderEnabled flips a provider's enabled flag.
func (h *Handler) HandleSetProviderEnabled(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.orchestrator.SetProviderEnabled(r.Context(), name, body.Enabled); err != nil {
		if errors.Is(err, domain.ErrProviderNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown provider"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "enabled": body.Enabled})
}

// writeFailure maps the error taxonomy to status codes. Raw provider error
// text never reaches the response body.
func writeFailure(w http.ResponseWriter, err error) {
	var exhausted *domain.FallbackExhaustedError
	switch {
	case errors.Is(err, domain.ErrEmptyPrompt):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "your input was rejected: prompt is required"})
	case errors.As(err, &exhausted):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable, retry later"})
	case errors.Is(err, domain.ErrInvalidOutput):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "the model returned an unusable response, retry later"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// publicMessage sanitizes terminal stream errors for the outer boundary.
func publicMessage(err error) string {
	var exhausted *domain.FallbackExhaustedError
	switch {
	case errors.As(err, &exhausted):
		return "temporarily unavailable, retry later"
	case errors.Is(err, domain.ErrStreamInterrupted):
		return "stream interrupted, partial output may be incomplete"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload map[string]string) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
	flusher.Flush()
}
