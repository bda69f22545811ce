// Package config loads the gateway configuration from environment variables
// and an optional YAML provider manifest.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider kinds understood by the adapter factory
const (
	ProviderKindOpenAI = "openai"
	ProviderKindStatic = "static"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Providers     []ProviderConfig
	Gateway       GatewayConfig
	Breaker       BreakerConfig
	Cache         CacheConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// ProviderConfig describes one backend in the fallback chain
type ProviderConfig struct {
	Name              string `yaml:"name"`
	Kind              string `yaml:"kind"`
	Priority          int    `yaml:"priority"`
	Model             string `yaml:"model"`
	BaseURL           string `yaml:"base_url"`
	APIKeyEnv         string `yaml:"api_key_env"`
	SupportsStreaming bool   `yaml:"supports_streaming"`
	StaticAnswer      string `yaml:"static_answer"`

	// APIKey is resolved from APIKeyEnv at load time, never serialized
	APIKey string `yaml:"-"`
}

// GatewayConfig holds fallback-loop tuning
type GatewayConfig struct {
	AttemptTimeout       time.Duration
	StreamAttemptTimeout time.Duration
}

// BreakerConfig holds circuit breaker tuning
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// CacheConfig holds response cache tuning
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a Config by loading environment variables and, when
// PROVIDERS_FILE is set, the YAML provider manifest.
func New() (*Config, error) {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Gateway: GatewayConfig{
			AttemptTimeout:       getEnvAsDuration("ATTEMPT_TIMEOUT", 30*time.Second),
			StreamAttemptTimeout: getEnvAsDuration("STREAM_ATTEMPT_TIMEOUT", 60*time.Second),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			Cooldown:         getEnvAsDuration("BREAKER_COOLDOWN", 60*time.Second),
		},
		Cache: CacheConfig{
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 100),
			TTL:        getEnvAsDuration("CACHE_TTL", time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	providers, err := loadProviders()
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true

		switch p.Kind {
		case ProviderKindOpenAI:
			if p.APIKey == "" {
				return fmt.Errorf("provider %q: missing API key (set %s)", p.Name, p.APIKeyEnv)
			}
		case ProviderKindStatic:
		default:
			return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}
	}

	if c.Gateway.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure threshold must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadProviders builds the ordered provider list. When PROVIDERS_FILE points
// at a YAML manifest that wins; otherwise the list is assembled from
// well-known environment keys: Groq as primary when GROQ_API_KEY is set,
// OpenAI as fallback when OPENAI_API_KEY is set, and the static last-resort
// provider always.
func loadProviders() ([]ProviderConfig, error) {
	if path := os.Getenv("PROVIDERS_FILE"); path != "" {
		return loadProvidersFile(path)
	}
	return providersFromEnv(), nil
}

func loadProvidersFile(path string) ([]ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var manifest struct {
		Providers []ProviderConfig `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	for i := range manifest.Providers {
		p := &manifest.Providers[i]
		if p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
		}
	}

	sortProviders(manifest.Providers)
	return manifest.Providers, nil
}

func providersFromEnv() []ProviderConfig {
	var providers []ProviderConfig

	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			Name:              "groq",
			Kind:              ProviderKindOpenAI,
			Priority:          1,
			Model:             getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
			BaseURL:           getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			APIKeyEnv:         "GROQ_API_KEY",
			APIKey:            key,
			SupportsStreaming: true,
		})
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		providers = append(providers, ProviderConfig{
			Name:              "openai",
			Kind:              ProviderKindOpenAI,
			Priority:          2,
			Model:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:           getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKeyEnv:         "OPENAI_API_KEY",
			APIKey:            key,
			SupportsStreaming: true,
		})
	}

	// Last resort: always present, so the platform can answer even with
	// every remote backend unreachable.
	providers = append(providers, ProviderConfig{
		Name:              "static",
		Kind:              ProviderKindStatic,
		Priority:          999,
		SupportsStreaming: true,
	})

	sortProviders(providers)
	return providers
}

func sortProviders(providers []ProviderConfig) {
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Priority < providers[j].Priority
	})
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
