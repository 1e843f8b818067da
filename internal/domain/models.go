package domain

import "time"

// TaskType tags the kind of work a request represents. It drives default
// model selection inside a provider and is part of the cache key.
type TaskType string

const (
	TaskGeneral            TaskType = "general"
	TaskClassification     TaskType = "classification"
	TaskAnalysis           TaskType = "analysis"
	TaskSummarization      TaskType = "summarization"
	TaskQuestionGeneration TaskType = "question_generation"
)

// Capability is a coarse quality/cost tier used to pick a default model
// when the request names none.
type Capability string

const (
	CapabilitySimple   Capability = "simple"
	CapabilityStandard Capability = "standard"
	CapabilityComplex  Capability = "complex"
)

// GenerationRequest is the immutable input for one generation. Callers build
// it once and never mutate it afterwards; components treat it as read-only.
type GenerationRequest struct {
	Prompt           string        `json:"prompt"`
	SystemPrompt     string        `json:"system_prompt,omitempty"`
	TaskType         TaskType      `json:"task_type,omitempty"`
	Capability       Capability    `json:"capability,omitempty"`
	Model            string        `json:"model,omitempty"`
	Temperature      float64       `json:"temperature,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	StopSequences    []string      `json:"stop_sequences,omitempty"`
	Timeout          time.Duration `json:"-"`
	RetryAttempts    int           `json:"retry_attempts,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

// TokenUsage tracks token consumption for one generation.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationResponse is the value returned on success. The fallback engine
// augments Metadata with attempt count and elapsed time before it reaches
// the caller.
type GenerationResponse struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Model      string            `json:"model"`
	Provider   string            `json:"provider"`
	Usage      TokenUsage        `json:"usage"`
	Cost       float64           `json:"cost"`
	LatencyMs  int64             `json:"latency_ms"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	FinishTime time.Time         `json:"finish_time"`
}

// Clone returns a copy whose Metadata map is independent of the receiver.
// Cached responses are cloned before metadata stamping so the stored entry
// stays untouched.
func (r *GenerationResponse) Clone() *GenerationResponse {
	if r == nil {
		return nil
	}
	out := *r
	out.Metadata = make(map[string]string, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

// StreamChunk is a single fragment of a streaming response. A chunk with
// Done set marks normal completion; a chunk with Err set marks an abnormal
// end. Consumers can always tell the two apart.
type StreamChunk struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
	Err   error  `json:"-"`
}

// CacheStats summarizes response cache effectiveness.
type CacheStats struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Evictions      int64   `json:"evictions"`
	Entries        int64   `json:"entries"`
	SizeBytes      int64   `json:"size_bytes"`
	SavedCost      float64 `json:"saved_cost"`
	SavedLatencyMs int64   `json:"saved_latency_ms"`
}

// RegistryEntry is a point-in-time view of one registered provider.
type RegistryEntry struct {
	Name     string         `json:"name"`
	Priority int            `json:"priority"`
	Weight   int            `json:"weight"`
	Enabled  bool           `json:"enabled"`
	Health   HealthSnapshot `json:"health"`
}

// Statistics is the operator-facing view of the whole orchestrator.
type Statistics struct {
	Providers       []RegistryEntry `json:"providers"`
	FallbackEnabled bool            `json:"fallback_enabled"`
	CostOptimize    bool            `json:"cost_optimize"`
	Cache           CacheStats      `json:"cache"`
}
