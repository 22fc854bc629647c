package testsupport

import (
	"path/filepath"
	"testing"

	"cara/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Logging goes to the temp log dir only at error level, and every retry wait
// is shortened so tests never sleep for real backoff intervals.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.AI.TimeoutSeconds = 5
	cfgVal.AI.SpacingMS = 0
	cfgVal.AI.RetryBaseDelayMS = 1
	cfgVal.AI.RetryMaxDelayMS = 4
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{
		t:   t,
		cfg: &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithProviderBaseURL points one provider at a test server.
func WithProviderBaseURL(id, baseURL string) ConfigOption {
	return func(b *configBuilder) {
		settings := b.cfg.AI.Providers[id]
		settings.BaseURL = baseURL
		b.cfg.AI.Providers[id] = settings
	}
}

// WithCurrentProvider sets the configured default provider.
func WithCurrentProvider(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.AI.CurrentProvider = id
	}
}

// WithCredentialBackend selects the credential store backend and secret.
func WithCredentialBackend(backend, secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Credentials.Backend = backend
		b.cfg.Credentials.Secret = secret
	}
}

