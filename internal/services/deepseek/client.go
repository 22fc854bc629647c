package deepseek

import (
	"time"

	"cara/internal/ai"
	"cara/internal/services/openaicompat"
)

const (
	defaultBaseURL = "https://api.deepseek.com"
	defaultModel   = "deepseek-chat"
)

// Config carries per-deployment overrides. Empty fields use the DeepSeek
// defaults.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Service is the DeepSeek chat completions adapter.
type Service struct {
	*openaicompat.Provider
}

// New constructs the DeepSeek adapter.
func New(cfg Config, opts ...openaicompat.Option) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	client := openaicompat.NewClient(openaicompat.Config{
		Provider: ai.ProviderDeepSeek,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	}, opts...)
	info := ai.ProviderInfo{
		Name:            ai.ProviderDeepSeek,
		DisplayName:     "DeepSeek",
		Description:     "DeepSeek chat models, strong at code and step-by-step reasoning.",
		RequiresAPIKey:  true,
		DefaultModel:    defaultModel,
		AvailableModels: []string{"deepseek-chat", "deepseek-coder", "deepseek-reasoner"},
	}
	return &Service{Provider: openaicompat.NewProvider(info, openaicompat.Defaults{Model: cfg.Model}, client)}
}
