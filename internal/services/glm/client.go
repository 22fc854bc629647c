package glm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cara/internal/ai"
	"cara/internal/services/openaicompat"
)

const (
	defaultBaseURL = "https://open.bigmodel.cn/api/paas/v4"
	defaultModel   = "glm-4-flash"
)

// ErrKeyFormat is returned when a key is not of the form "<id>.<secret>".
var ErrKeyFormat = errors.New("glm api key must look like <id>.<secret>")

// Config carries per-deployment overrides.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Service is the Zhipu GLM adapter.
type Service struct {
	*openaicompat.Provider
}

// New constructs the GLM adapter. GLM samples warmer than the others by
// default (temperature 0.7, top_p 0.9).
func New(cfg Config, opts ...openaicompat.Option) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	client := openaicompat.NewClient(openaicompat.Config{
		Provider: ai.ProviderGLM,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	}, opts...)
	info := ai.ProviderInfo{
		Name:           ai.ProviderGLM,
		DisplayName:    "智谱 GLM",
		Description:    "Zhipu AI GLM models with strong Chinese understanding and generation.",
		RequiresAPIKey: true,
		DefaultModel:   defaultModel,
		AvailableModels: []string{
			"glm-4-flash",
			"glm-4-plus",
			"glm-4-0520",
			"glm-4-air",
			"glm-4-long",
			"glm-3-turbo",
		},
	}
	defaults := openaicompat.Defaults{
		Model:       cfg.Model,
		Temperature: 0.7,
		TopP:        ai.Float(0.9),
	}
	return &Service{Provider: openaicompat.NewProvider(info, defaults, client)}
}

// ValidateAPIKey checks the key shape locally, then lists models with it.
func (s *Service) ValidateAPIKey(ctx context.Context, key string) error {
	if err := CheckKeyFormat(key); err != nil {
		return err
	}
	return s.Client().ListModels(ctx, key)
}

// CheckKeyFormat rejects keys without a non-empty id and secret around a dot.
func CheckKeyFormat(key string) error {
	id, secret, ok := strings.Cut(strings.TrimSpace(key), ".")
	if !ok || id == "" || secret == "" {
		return fmt.Errorf("%s: %w", ai.ProviderGLM, ErrKeyFormat)
	}
	return nil
}
