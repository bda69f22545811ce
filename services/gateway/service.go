// Package gateway implements the invocation gateway: ordered fallback across
// prioritized LLM providers, gated by per-provider circuit breakers, with a
// bounded timeout on every attempt.
package gateway

import (
	"context"
	"time"

	"github.com/taskni/llm-gateway/services/breaker"
	"github.com/taskni/llm-gateway/services/providers"
	"go.uber.org/zap"
)

// Default per-attempt timeouts. Streaming attempts get a longer budget
// because the timeout covers the whole stream, not just the first byte.
const (
	DefaultAttemptTimeout       = 30 * time.Second
	DefaultStreamAttemptTimeout = 60 * time.Second
)

// Config holds gateway tuning
type Config struct {
	// AttemptTimeout bounds one unary provider attempt
	AttemptTimeout time.Duration

	// StreamAttemptTimeout bounds one streaming provider attempt end to end
	StreamAttemptTimeout time.Duration
}

// DefaultConfig returns the default gateway configuration
func DefaultConfig() Config {
	return Config{
		AttemptTimeout:       DefaultAttemptTimeout,
		StreamAttemptTimeout: DefaultStreamAttemptTimeout,
	}
}

// Gateway produces one completion, or a live sequence of fragments, from the
// first eligible provider that succeeds. It is the only component callers
// talk to directly; each Gateway owns its breaker registry and is safe for
// concurrent use.
type Gateway struct {
	registry *providers.Registry
	breakers *breaker.Registry
	cfg      Config
	sink     AttemptSink
	logger   *zap.Logger
}

// New creates a gateway over the given provider registry
func New(registry *providers.Registry, breakers *breaker.Registry, cfg Config, sink AttemptSink, logger *zap.Logger) *Gateway {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.StreamAttemptTimeout <= 0 {
		cfg.StreamAttemptTimeout = DefaultStreamAttemptTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		registry: registry,
		breakers: breakers,
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
	}
}

// Generate runs the unary fallback loop: providers are tried strictly in
// ascending priority order, each under its own timeout. The first success
// wins; exhaustion returns AllProvidersFailedError with the ordered
// per-provider error list. Cancelling ctx aborts the in-flight attempt and
// prevents any further fallback.
func (g *Gateway) Generate(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions) (*providers.Completion, error) {
	var failures []AttemptError

	for _, d := range g.registry.Descriptors() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		br := g.breakers.For(d.Name)
		if !br.Allow() {
			g.logger.Debug("provider skipped: circuit open", zap.String("provider", d.Name))
			failures = append(failures, AttemptError{
				Provider: d.Name,
				Class:    ErrorClassCircuitOpen,
				Message:  "circuit open, provider not attempted",
			})
			continue
		}

		g.logger.Debug("attempting provider", zap.String("provider", d.Name))

		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
		start := time.Now()
		completion, err := d.Provider.Generate(attemptCtx, messages, opts)
		latency := time.Since(start)
		cancel()

		if err == nil {
			br.RecordSuccess()
			g.emit(AttemptRecord{Provider: d.Name, Outcome: OutcomeSuccess, Latency: latency})
			g.logger.Info("provider succeeded",
				zap.String("provider", d.Name),
				zap.Duration("latency", latency))
			return completion, nil
		}

		br.RecordFailure()
		class := providers.ClassOf(err)
		g.emit(AttemptRecord{Provider: d.Name, Outcome: outcomeFor(class), Latency: latency, ErrorClass: class})
		g.logger.Warn("provider failed",
			zap.String("provider", d.Name),
			zap.String("class", string(class)),
			zap.Duration("latency", latency),
			zap.Error(err))

		failures = append(failures, AttemptError{
			Provider: d.Name,
			Class:    class,
			Message:  err.Error(),
		})

		// Caller cancellation aborts the loop; the attempt timeout alone
		// does not, since the next provider still deserves its turn.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}

	return nil, &AllProvidersFailedError{Attempts: failures}
}

// GenerateStream runs the same selection loop as Generate but commits to a
// provider lazily, at its first fragment. Failures before the first fragment
// fall through to the next provider; failures after at least one delivered
// fragment terminate the stream with StreamInterruptedError and no other
// provider is tried. Fragments reach fn strictly in the order the chosen
// provider produced them, and are never retracted.
func (g *Gateway) GenerateStream(ctx context.Context, messages []providers.Message, opts providers.GenerateOptions, fn providers.FragmentFunc) error {
	var failures []AttemptError

	for _, d := range g.registry.Descriptors() {
		if err := ctx.Err(); err != nil {
			return err
		}

		br := g.breakers.For(d.Name)
		if !br.Allow() {
			g.logger.Debug("provider skipped: circuit open", zap.String("provider", d.Name))
			failures = append(failures, AttemptError{
				Provider: d.Name,
				Class:    ErrorClassCircuitOpen,
				Message:  "circuit open, provider not attempted",
			})
			continue
		}

		g.logger.Debug("attempting streaming provider", zap.String("provider", d.Name))

		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.StreamAttemptTimeout)
		delivered := 0
		start := time.Now()
		err := g.streamFrom(attemptCtx, d, messages, opts, func(f providers.Fragment) error {
			delivered++
			return fn(f)
		})
		latency := time.Since(start)
		cancel()

		if err == nil {
			br.RecordSuccess()
			g.emit(AttemptRecord{Provider: d.Name, Outcome: OutcomeSuccess, Latency: latency})
			g.logger.Info("stream completed",
				zap.String("provider", d.Name),
				zap.Int("fragments", delivered),
				zap.Duration("latency", latency))
			return nil
		}

		br.RecordFailure()
		class := providers.ClassOf(err)
		g.emit(AttemptRecord{Provider: d.Name, Outcome: outcomeFor(class), Latency: latency, ErrorClass: class})

		if delivered > 0 {
			g.logger.Warn("stream interrupted mid-delivery",
				zap.String("provider", d.Name),
				zap.Int("fragments", delivered),
				zap.Error(err))
			return &StreamInterruptedError{
				Provider:           d.Name,
				Class:              class,
				DeliveredFragments: delivered,
				Err:                err,
			}
		}

		g.logger.Warn("streaming provider failed before first fragment",
			zap.String("provider", d.Name),
			zap.String("class", string(class)),
			zap.Error(err))

		failures = append(failures, AttemptError{
			Provider: d.Name,
			Class:    class,
			Message:  err.Error(),
		})

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}

	return &AllProvidersFailedError{Attempts: failures}
}

// streamFrom streams from one provider. Backends without streaming support
// are invoked unary and their full completion is delivered as one fragment.
func (g *Gateway) streamFrom(ctx context.Context, d providers.Descriptor, messages []providers.Message, opts providers.GenerateOptions, fn providers.FragmentFunc) error {
	if !d.SupportsStreaming {
		completion, err := d.Provider.Generate(ctx, messages, opts)
		if err != nil {
			return err
		}
		return fn(providers.Fragment{Content: completion.Content})
	}
	return d.Provider.GenerateStream(ctx, messages, opts, fn)
}

// BreakerStates returns the current circuit state per known provider
func (g *Gateway) BreakerStates() map[string]breaker.State {
	return g.breakers.States()
}

func (g *Gateway) emit(record AttemptRecord) {
	if g.sink != nil {
		g.sink.RecordAttempt(record)
	}
}

func outcomeFor(class providers.ErrorClass) Outcome {
	if class == providers.ErrorClassTimeout {
		return OutcomeTimeout
	}
	return OutcomeFailure
}
