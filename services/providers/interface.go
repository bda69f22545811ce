package providers

import (
	"context"
	"errors"
	"time"
)

// Provider is the capability interface every LLM backend adapter implements.
// The gateway depends only on this interface, never on concrete adapters.
type Provider interface {
	// Name returns the provider name (e.g., "groq", "openai", "static")
	Name() string

	// Generate performs a unary chat completion request
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Completion, error)

	// GenerateStream performs a streaming chat completion, invoking fn once
	// per fragment in the order the backend produced them. A non-nil error
	// from fn aborts the stream and is returned unchanged.
	GenerateStream(ctx context.Context, messages []Message, opts GenerateOptions, fn FragmentFunc) error
}

// Message represents a single role-tagged turn in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// GenerateOptions carries generation parameters. The gateway treats these as
// opaque and hands them to the adapter unchanged.
type GenerateOptions struct {
	// Model identifier; empty means the adapter's configured default
	Model string `json:"model,omitempty"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling
	TopP float64 `json:"top_p,omitempty"`

	// Stop sequences
	Stop []string `json:"stop,omitempty"`

	// Metadata for tracking and logging
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Completion represents a unified completion response
type Completion struct {
	// ID is the backend's identifier for this completion
	ID string `json:"id"`

	// Provider that produced the completion
	Provider string `json:"provider"`

	// Model used for the completion
	Model string `json:"model"`

	// Content is the generated text
	Content string `json:"content"`

	// FinishReason indicates why generation stopped
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage statistics
	Usage Usage `json:"usage"`

	// Latency of the backend call
	Latency time.Duration `json:"latency"`

	// Created timestamp
	Created time.Time `json:"created"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Fragment is one incremental unit of a streamed completion
type Fragment struct {
	// Content is the incremental text
	Content string `json:"content"`

	// Index is the zero-based position of this fragment in the stream
	Index int `json:"index"`
}

// FragmentFunc is called for each fragment in a streaming response
type FragmentFunc func(Fragment) error

// ErrorClass categorizes provider failures
type ErrorClass string

const (
	ErrorClassAuth              ErrorClass = "auth"
	ErrorClassRateLimit         ErrorClass = "rate_limit"
	ErrorClassNetwork           ErrorClass = "network"
	ErrorClassTimeout           ErrorClass = "timeout"
	ErrorClassMalformedResponse ErrorClass = "malformed_response"
	ErrorClassUnknown           ErrorClass = "unknown"
)

// ProviderError represents a classified error from a backend adapter
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Class is the error category
	Class ErrorClass

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider string, class ErrorClass, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Class:      class,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// ClassOf extracts the error class from an error. Context deadline errors
// map to the timeout class; anything unclassified maps to unknown.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	return ErrorClassUnknown
}

// IsTransient reports whether an error class represents a transient failure
// (timeout, rate limit, network). The gateway does not special-case
// permanence for fallback decisions, only for diagnostic labeling.
func IsTransient(err error) bool {
	switch ClassOf(err) {
	case ErrorClassTimeout, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	}
	return false
}
