package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/taskni/llm-gateway/config"
	"github.com/taskni/llm-gateway/internal/observability"
	"github.com/taskni/llm-gateway/services/answer"
	"github.com/taskni/llm-gateway/services/breaker"
	"github.com/taskni/llm-gateway/services/cache"
	"github.com/taskni/llm-gateway/services/gateway"
	"github.com/taskni/llm-gateway/services/providers"
	"github.com/taskni/llm-gateway/services/providers/openai"
	"github.com/taskni/llm-gateway/services/providers/static"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Core services
	Providers     *providers.Registry
	Breakers      *breaker.Registry
	Gateway       *gateway.Gateway
	ResponseCache *cache.ResponseCache
	AnswerService *answer.Service

	// Observability
	Metrics        *observability.Metrics
	PromRegistry   *prometheus.Registry
	MetricsEnabled bool
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initCache(cfg)
	deps.initObservability(cfg)
	deps.initGateway(cfg)
	deps.initAnswerService()

	logger.Info("all dependencies initialized",
		zap.Strings("providers", deps.Providers.Names()),
		zap.Bool("metrics_enabled", deps.MetricsEnabled))
	return deps, nil
}

// initProviders builds adapters from configuration and registers them in
// priority order
func (d *Dependencies) initProviders(cfg *config.Config) error {
	descriptors := make([]providers.Descriptor, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		adapter, err := buildAdapter(pc)
		if err != nil {
			return err
		}
		descriptors = append(descriptors, providers.Descriptor{
			Name:              pc.Name,
			Priority:          pc.Priority,
			SupportsStreaming: pc.SupportsStreaming,
			Provider:          adapter,
		})
		d.Logger.Info("provider registered",
			zap.String("provider", pc.Name),
			zap.String("kind", pc.Kind),
			zap.Int("priority", pc.Priority))
	}

	registry, err := providers.NewRegistry(descriptors)
	if err != nil {
		return err
	}
	d.Providers = registry

	d.Breakers = breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
	}, d.Logger)

	return nil
}

// buildAdapter constructs the backend adapter for one provider entry
func buildAdapter(pc config.ProviderConfig) (providers.Provider, error) {
	switch pc.Kind {
	case config.ProviderKindOpenAI:
		return openai.New(openai.Config{
			Name:    pc.Name,
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Model:   pc.Model,
		}), nil
	case config.ProviderKindStatic:
		return static.New(static.Config{
			Name:   pc.Name,
			Answer: pc.StaticAnswer,
		}), nil
	default:
		return nil, fmt.Errorf("provider %q: unknown kind %q", pc.Name, pc.Kind)
	}
}

func (d *Dependencies) initCache(cfg *config.Config) {
	d.ResponseCache = cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	d.Logger.Info("response cache initialized",
		zap.Int("max_entries", cfg.Cache.MaxEntries),
		zap.Duration("ttl", cfg.Cache.TTL))
}

func (d *Dependencies) initObservability(cfg *config.Config) {
	d.MetricsEnabled = cfg.Observability.MetricsEnabled
	if !d.MetricsEnabled {
		return
	}
	d.PromRegistry = prometheus.NewRegistry()
	d.Metrics = observability.NewMetrics(d.PromRegistry, d.ResponseCache.Stats)
	d.Logger.Info("metrics registry initialized")
}

func (d *Dependencies) initGateway(cfg *config.Config) {
	var sink gateway.AttemptSink
	if d.Metrics != nil {
		sink = d.Metrics
	}
	d.Gateway = gateway.New(d.Providers, d.Breakers, gateway.Config{
		AttemptTimeout:       cfg.Gateway.AttemptTimeout,
		StreamAttemptTimeout: cfg.Gateway.StreamAttemptTimeout,
	}, sink, d.Logger)
}

func (d *Dependencies) initAnswerService() {
	d.AnswerService = answer.New(d.Gateway, d.ResponseCache, nil, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return nil
}
