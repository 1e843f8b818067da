package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies a provider failure so callers can decide whether to
// move on to the next candidate without parsing message text.
type ErrorKind int

const (
	// ErrorKindTransient covers timeouts, connection resets and 5xx
	// responses. The next candidate in the chain is tried.
	ErrorKindTransient ErrorKind = iota

	// ErrorKindRateLimit marks a 429-style rejection. The provider enters
	// a cooldown and the next candidate is tried.
	ErrorKindRateLimit

	// ErrorKindFatal marks configuration-level failures such as bad
	// credentials. Never retried automatically.
	ErrorKindFatal
)

// String returns the kind's wire-friendly label.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindRateLimit:
		return "rate_limit"
	case ErrorKindFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// ProviderError is the typed failure raised by a provider call.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the fallback engine may move on to the next
// candidate after this failure.
func (e *ProviderError) Retryable() bool {
	return e.Kind != ErrorKindFatal
}

// Attempt records one failed candidate within a single request.
type Attempt struct {
	Provider string        `json:"provider"`
	Error    string        `json:"error"`
	At       time.Time     `json:"at"`
	Elapsed  time.Duration `json:"elapsed"`
}

// FallbackExhaustedError is raised when every candidate in the chain has
// been tried or skipped without success. It is a distinct kind from any
// individual provider error so callers can branch on "total outage" vs.
// "single provider degraded".
type FallbackExhaustedError struct {
	Attempts []Attempt
}

func (e *FallbackExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all providers exhausted: no candidates were attemptable"
	}

	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, a.Error))
	}
	return fmt.Sprintf("all providers exhausted after %d attempts: %s",
		len(e.Attempts), strings.Join(parts, "; "))
}

// ErrCacheMiss indicates no cached entry was found.
var ErrCacheMiss = errors.New("cache miss")

// ErrEmptyPrompt rejects requests with no prompt text before any provider
// is consulted.
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// ErrInvalidOutput marks content that a provider delivered successfully at
// the transport level but that failed schema validation.
var ErrInvalidOutput = errors.New("invalid model output")

// ErrStreamInterrupted marks a stream that failed after partial output was
// already delivered. It must propagate to the caller and must never trigger
// a second provider for the same logical request.
var ErrStreamInterrupted = errors.New("stream interrupted after partial output")

// ErrProviderNotFound is returned for lookups of unregistered providers.
var ErrProviderNotFound = errors.New("provider not found")
