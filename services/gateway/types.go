package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/taskni/llm-gateway/services/providers"
)

// Outcome classifies a provider attempt
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// ErrorClassCircuitOpen marks a provider that was skipped, not attempted,
// because its circuit breaker was open.
const ErrorClassCircuitOpen providers.ErrorClass = "circuit_open"

// AttemptRecord describes one provider attempt. Records are emitted to the
// configured sink, never stored by the gateway.
type AttemptRecord struct {
	Provider   string
	Outcome    Outcome
	Latency    time.Duration
	ErrorClass providers.ErrorClass
}

// AttemptSink receives one AttemptRecord per provider attempt. Implementations
// must be safe for concurrent use and must not block.
type AttemptSink interface {
	RecordAttempt(AttemptRecord)
}

// AttemptError is one entry in the ordered per-provider error list of an
// exhausted fallback loop.
type AttemptError struct {
	Provider string               `json:"provider"`
	Class    providers.ErrorClass `json:"class"`
	Message  string               `json:"message"`
}

// AllProvidersFailedError is returned when the fallback loop exhausts every
// provider. Attempts holds one entry per provider in the order they were
// tried; providers skipped on an open circuit appear with class circuit_open.
type AllProvidersFailedError struct {
	Attempts []AttemptError
}

// Error implements the error interface
func (e *AllProvidersFailedError) Error() string {
	var sb strings.Builder
	sb.WriteString("all providers failed:")
	for _, a := range e.Attempts {
		sb.WriteString(fmt.Sprintf("\n  - %s (%s): %s", a.Provider, a.Class, a.Message))
	}
	return sb.String()
}

// StreamInterruptedError is returned when a stream fails after at least one
// fragment was delivered to the caller. No further provider is tried:
// partially delivered output must never be silently discarded or mixed with
// another provider's output.
type StreamInterruptedError struct {
	Provider           string
	Class              providers.ErrorClass
	DeliveredFragments int
	Err                error
}

// Error implements the error interface
func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream from %s interrupted after %d fragments (%s): %v",
		e.Provider, e.DeliveredFragments, e.Class, e.Err)
}

// Unwrap implements error unwrapping
func (e *StreamInterruptedError) Unwrap() error {
	return e.Err
}
