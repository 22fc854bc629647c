package providers

import (
	"fmt"
	"log/slog"
	"net/http"

	"cara/internal/ai"
	"cara/internal/config"
	"cara/internal/governor"
	"cara/internal/logging"
	"cara/internal/services/claude"
	"cara/internal/services/deepseek"
	"cara/internal/services/gemini"
	"cara/internal/services/glm"
	"cara/internal/services/openaicompat"
	"cara/internal/services/siliconflow"
	"cara/internal/services/volcengine"
)

// Option customizes how the registry is assembled.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	store      ai.CredentialStore
	govOpts    []governor.Option
}

// WithHTTPClient shares one HTTP client across every adapter.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger attaches a logger to the adapters, governor, and manager.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCredentialStore attaches the key store to the manager.
func WithCredentialStore(store ai.CredentialStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithGovernorOptions appends governor options after the configured ones.
func WithGovernorOptions(opts ...governor.Option) Option {
	return func(o *options) {
		o.govOpts = append(o.govOpts, opts...)
	}
}

func resolve(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	return o
}

// Services builds one adapter per supported provider from configuration.
func Services(cfg *config.Config, opts ...Option) []ai.Service {
	o := resolve(opts)
	timeout := cfg.RequestTimeout()

	compatOpts := []openaicompat.Option{openaicompat.WithLogger(o.logger)}
	claudeOpts := []claude.Option{claude.WithLogger(o.logger)}
	geminiOpts := []gemini.Option{gemini.WithLogger(o.logger)}
	if o.httpClient != nil {
		compatOpts = append(compatOpts, openaicompat.WithHTTPClient(o.httpClient))
		claudeOpts = append(claudeOpts, claude.WithHTTPClient(o.httpClient))
		geminiOpts = append(geminiOpts, gemini.WithHTTPClient(o.httpClient))
	}

	settings := func(id ai.ProviderID) config.Provider {
		return cfg.ProviderSettings(string(id))
	}
	cl := settings(ai.ProviderClaude)
	ds := settings(ai.ProviderDeepSeek)
	gm := settings(ai.ProviderGemini)
	gl := settings(ai.ProviderGLM)
	ve := settings(ai.ProviderVolcEngine)
	sf := settings(ai.ProviderSiliconFlow)

	return []ai.Service{
		claude.New(claude.Config{BaseURL: cl.BaseURL, Model: cl.Model, Timeout: timeout}, claudeOpts...),
		deepseek.New(deepseek.Config{BaseURL: ds.BaseURL, Model: ds.Model, Timeout: timeout}, compatOpts...),
		gemini.New(gemini.Config{BaseURL: gm.BaseURL, Model: gm.Model, Timeout: timeout}, geminiOpts...),
		glm.New(glm.Config{BaseURL: gl.BaseURL, Model: gl.Model, Timeout: timeout}, compatOpts...),
		volcengine.New(volcengine.Config{BaseURL: ve.BaseURL, Model: ve.Model, Timeout: timeout}, compatOpts...),
		siliconflow.New(siliconflow.Config{BaseURL: sf.BaseURL, Model: sf.Model, Timeout: timeout}, compatOpts...),
	}
}

// Governor builds the request governor from the [ai] spacing and retry
// settings.
func Governor(cfg *config.Config, opts ...Option) *governor.Governor {
	o := resolve(opts)
	policy := governor.DefaultRetryPolicy(ai.IsRetryable)
	policy.MaxAttempts = cfg.AI.RetryAttempts
	policy.BaseDelay = cfg.RetryBaseDelay()
	policy.MaxDelay = cfg.RetryMaxDelay()

	govOpts := []governor.Option{
		governor.WithDefaultSpacing(cfg.Spacing("")),
		governor.WithRetryPolicy(policy),
		governor.WithLogger(o.logger),
	}
	for _, id := range ai.AllProviders() {
		govOpts = append(govOpts, governor.WithSpacing(string(id), cfg.Spacing(string(id))))
	}
	return ai.NewGovernor(append(govOpts, o.govOpts...)...)
}

// NewManager assembles adapters, governor, and store into a Manager whose
// current provider comes from configuration.
func NewManager(cfg *config.Config, opts ...Option) (*ai.Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("providers: nil config")
	}
	o := resolve(opts)
	current, err := ai.ParseProviderID(cfg.AI.CurrentProvider)
	if err != nil {
		return nil, fmt.Errorf("ai.current_provider: %w", err)
	}
	models := make(map[ai.ProviderID]string)
	for _, id := range ai.AllProviders() {
		if model := cfg.ProviderSettings(string(id)).Model; model != "" {
			models[id] = model
		}
	}
	return ai.NewManager(Services(cfg, opts...),
		ai.WithGovernor(Governor(cfg, opts...)),
		ai.WithCredentialStore(o.store),
		ai.WithLogger(o.logger),
		ai.WithCurrentProvider(current),
		ai.WithProviderModels(models),
	)
}
