package siliconflow

import (
	"time"

	"cara/internal/ai"
	"cara/internal/services/openaicompat"
)

const (
	defaultBaseURL = "https://api.siliconflow.cn/v1"
	defaultModel   = "Qwen/Qwen2.5-72B-Instruct"
)

// Config carries per-deployment overrides.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Service is the SiliconFlow adapter for hosted open-weight models.
type Service struct {
	*openaicompat.Provider
}

// New constructs the SiliconFlow adapter.
func New(cfg Config, opts ...openaicompat.Option) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	client := openaicompat.NewClient(openaicompat.Config{
		Provider: ai.ProviderSiliconFlow,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	}, opts...)
	info := ai.ProviderInfo{
		Name:           ai.ProviderSiliconFlow,
		DisplayName:    "硅基流动",
		Description:    "SiliconFlow hosted open-weight models (Qwen, DeepSeek, Llama, Yi).",
		RequiresAPIKey: true,
		DefaultModel:   defaultModel,
		AvailableModels: []string{
			"Qwen/Qwen2.5-72B-Instruct",
			"deepseek-ai/DeepSeek-V2.5",
			"meta-llama/Llama-3.1-70B-Instruct",
			"01-ai/Yi-1.5-34B-Chat",
		},
	}
	defaults := openaicompat.Defaults{Model: cfg.Model, TopP: ai.Float(0.9)}
	return &Service{Provider: openaicompat.NewProvider(info, defaults, client)}
}
