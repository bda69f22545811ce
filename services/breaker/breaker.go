// Package breaker implements the per-provider circuit breaker that stops the
// gateway from spending timeout budget on a backend in persistent failure.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed allows all attempts (normal operation)
	StateClosed State = iota
	// StateOpen rejects all attempts until the cooldown elapses
	StateOpen
	// StateHalfOpen admits exactly one trial attempt
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Default thresholds, matching the gateway's shipped configuration.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
)

// Config holds circuit breaker tuning
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int

	// Cooldown is how long an open circuit waits before admitting a trial
	Cooldown time.Duration
}

// DefaultConfig returns the default breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		Cooldown:         DefaultCooldown,
	}
}

// Breaker is the failure-state machine for a single provider. All state
// transitions happen as a direct consequence of Allow/RecordSuccess/
// RecordFailure calls; there is no background timer.
type Breaker struct {
	mu sync.Mutex

	cfg                 Config
	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	// now is swapped in tests for deterministic cooldown checks
	now func() time.Time
}

// New creates a breaker in the closed state
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Allow reports whether an attempt against this provider may proceed.
// When the cooldown of an open circuit has elapsed, the circuit moves to
// half_open and the calling goroutine is admitted as the single trial;
// concurrent callers observing half_open during that window are rejected as
// if the circuit were still open. An admitted caller must follow up with
// RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = StateHalfOpen
			b.trialInFlight = true
			return true
		}
		return false

	case StateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true

	default:
		return false
	}
}

// RecordSuccess records a successful attempt. Resets the consecutive failure
// count and closes the circuit if it was half_open.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.trialInFlight = false
	}
}

// RecordFailure records a failed attempt. Any outcome other than success
// (timeout, error, malformed response) counts here, regardless of whether
// the underlying failure is transient or permanent.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		// Failed trial reopens the circuit with a fresh cooldown window.
		b.state = StateOpen
		b.openedAt = b.now()
		b.trialInFlight = false
	}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current consecutive failure count
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// Registry holds one breaker per provider name, created lazily on first
// attempt. Breakers live for the gateway's process lifetime.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	logger   *zap.Logger
	breakers map[string]*Breaker
}

// NewRegistry creates a breaker registry with the given shared configuration
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for the given provider, creating it on first use
func (r *Registry) For(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.breakers[provider]
	if !exists {
		b = New(r.cfg)
		r.breakers[provider] = b
		r.logger.Debug("circuit breaker created", zap.String("provider", provider))
	}
	return b
}

// States returns a snapshot of every known provider's state
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		states[name] = b.State()
	}
	return states
}
