package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Gateway.AttemptTimeout)
	assert.Equal(t, 60*time.Second, cfg.Gateway.StreamAttemptTimeout)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, "development", cfg.Environment)
}

func TestNewEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ATTEMPT_TIMEOUT", "10s")
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "3")
	t.Setenv("CACHE_MAX_ENTRIES", "50")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Gateway.AttemptTimeout)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func TestProvidersFromEnv(t *testing.T) {
	t.Run("static alone when no keys are set", func(t *testing.T) {
		t.Setenv("GROQ_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "")
		os.Unsetenv("GROQ_API_KEY")
		os.Unsetenv("OPENAI_API_KEY")

		cfg, err := New()
		require.NoError(t, err)

		require.Len(t, cfg.Providers, 1)
		assert.Equal(t, "static", cfg.Providers[0].Name)
		assert.Equal(t, ProviderKindStatic, cfg.Providers[0].Kind)
	})

	t.Run("groq then openai then static", func(t *testing.T) {
		t.Setenv("GROQ_API_KEY", "gsk-test")
		t.Setenv("OPENAI_API_KEY", "sk-test")

		cfg, err := New()
		require.NoError(t, err)

		require.Len(t, cfg.Providers, 3)
		assert.Equal(t, "groq", cfg.Providers[0].Name)
		assert.Equal(t, 1, cfg.Providers[0].Priority)
		assert.Equal(t, "gsk-test", cfg.Providers[0].APIKey)
		assert.True(t, cfg.Providers[0].SupportsStreaming)

		assert.Equal(t, "openai", cfg.Providers[1].Name)
		assert.Equal(t, 2, cfg.Providers[1].Priority)

		assert.Equal(t, "static", cfg.Providers[2].Name)
		assert.Equal(t, 999, cfg.Providers[2].Priority)
	})

	t.Run("model overrides", func(t *testing.T) {
		t.Setenv("GROQ_API_KEY", "gsk-test")
		t.Setenv("GROQ_MODEL", "llama-3.3-70b-versatile")

		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, "llama-3.3-70b-versatile", cfg.Providers[0].Model)
	})
}

func TestProvidersFile(t *testing.T) {
	writeManifest := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "providers.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	t.Run("manifest wins over env discovery", func(t *testing.T) {
		path := writeManifest(t, `
providers:
  - name: fallback
    kind: static
    priority: 50
    static_answer: "Please try later."
  - name: primary
    kind: openai
    priority: 1
    model: gpt-4o-mini
    base_url: https://api.openai.com/v1
    api_key_env: TEST_PRIMARY_KEY
    supports_streaming: true
`)
		t.Setenv("PROVIDERS_FILE", path)
		t.Setenv("TEST_PRIMARY_KEY", "sk-from-manifest")

		cfg, err := New()
		require.NoError(t, err)

		require.Len(t, cfg.Providers, 2)
		assert.Equal(t, "primary", cfg.Providers[0].Name, "manifest entries are sorted by priority")
		assert.Equal(t, "sk-from-manifest", cfg.Providers[0].APIKey)
		assert.Equal(t, "fallback", cfg.Providers[1].Name)
		assert.Equal(t, "Please try later.", cfg.Providers[1].StaticAnswer)
	})

	t.Run("missing api key fails validation", func(t *testing.T) {
		path := writeManifest(t, `
providers:
  - name: primary
    kind: openai
    priority: 1
    api_key_env: TEST_UNSET_KEY
`)
		t.Setenv("PROVIDERS_FILE", path)
		os.Unsetenv("TEST_UNSET_KEY")

		_, err := New()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing API key")
	})

	t.Run("unknown kind fails validation", func(t *testing.T) {
		path := writeManifest(t, `
providers:
  - name: weird
    kind: carrier-pigeon
    priority: 1
`)
		t.Setenv("PROVIDERS_FILE", path)

		_, err := New()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown kind")
	})

	t.Run("duplicate names fail validation", func(t *testing.T) {
		path := writeManifest(t, `
providers:
  - name: twin
    kind: static
    priority: 1
  - name: twin
    kind: static
    priority: 2
`)
		t.Setenv("PROVIDERS_FILE", path)

		_, err := New()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate provider name")
	})

	t.Run("unreadable file is an error", func(t *testing.T) {
		t.Setenv("PROVIDERS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

		_, err := New()
		require.Error(t, err)
	})
}

func TestServerAddress(t *testing.T) {
	sc := ServerConfig{Host: "127.0.0.1", Port: 9000}
	assert.Equal(t, "127.0.0.1:9000", sc.Address())
}

func TestIsProduction(t *testing.T) {
	assert.True(t, (&Config{Environment: "production"}).IsProduction())
	assert.True(t, (&Config{Environment: "prod"}).IsProduction())
	assert.False(t, (&Config{Environment: "development"}).IsProduction())
}
