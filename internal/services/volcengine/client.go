package volcengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cara/internal/ai"
	"cara/internal/services/openaicompat"
)

const (
	defaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	defaultModel   = "doubao-pro-32k"
)

// Config carries per-deployment overrides. Ark models are usually addressed
// by an inference endpoint id (ep-...), so Model is commonly overridden.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Service is the VolcEngine Ark adapter.
type Service struct {
	*openaicompat.Provider
}

// New constructs the VolcEngine adapter.
func New(cfg Config, opts ...openaicompat.Option) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	client := openaicompat.NewClient(openaicompat.Config{
		Provider:      ai.ProviderVolcEngine,
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		Authorization: Authorization,
	}, opts...)
	info := ai.ProviderInfo{
		Name:            ai.ProviderVolcEngine,
		DisplayName:     "火山引擎",
		Description:     "VolcEngine Ark (ByteDance) Doubao models and custom inference endpoints.",
		RequiresAPIKey:  true,
		DefaultModel:    defaultModel,
		AvailableModels: []string{"doubao-pro-32k", "doubao-pro-128k", "doubao-lite-32k"},
	}
	return &Service{Provider: openaicompat.NewProvider(info, openaicompat.Defaults{Model: cfg.Model}, client)}
}

// GenerateCompletion adds a configuration hint to 404 responses, which Ark
// returns for unknown models, endpoints, and regions alike.
func (s *Service) GenerateCompletion(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error) {
	text, err := s.Provider.GenerateCompletion(ctx, messages, opts)
	if err != nil {
		return "", s.withNotFoundHint(err, s.Request(messages, opts).Model)
	}
	return text, nil
}

// ValidateAPIKey sends a ten-token completion with key.
func (s *Service) ValidateAPIKey(ctx context.Context, key string) error {
	if err := s.Provider.ValidateAPIKey(ctx, key); err != nil {
		return s.withNotFoundHint(err, s.Request(nil, ai.CompletionOptions{}).Model)
	}
	return nil
}

func (s *Service) withNotFoundHint(err error, model string) error {
	var backendErr *ai.BackendError
	if !errors.As(err, &backendErr) || backendErr.StatusCode != http.StatusNotFound {
		return err
	}
	return fmt.Errorf("%w (endpoint not found: check that model or endpoint id %q exists in the Ark console, that %s is the right region, and that the key is an Ark API key)",
		err, model, s.Client().BaseURL())
}

// Authorization maps the accepted key shapes to a header value:
// "Bearer <token>" and "ak-..." pairs are sent verbatim, "access:secret" sends
// the secret as a bearer token, anything else is sent as a bearer token.
func Authorization(key string) string {
	key = strings.TrimSpace(key)
	switch {
	case strings.HasPrefix(key, "Bearer "):
		return key
	case strings.Contains(key, "ak-"):
		return key
	}
	if access, secret, ok := strings.Cut(key, ":"); ok && access != "" && secret != "" && !strings.Contains(secret, ":") {
		return "Bearer " + secret
	}
	return "Bearer " + key
}
