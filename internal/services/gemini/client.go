package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"cara/internal/ai"
	"cara/internal/logging"
	"cara/internal/services/openaicompat"
)

const (
	defaultModel       = "gemini-2.0-flash"
	defaultMaxTokens   = 4096
	defaultTemperature = 0.3
)

var models = []string{
	"gemini-2.0-flash",
	"gemini-2.0-flash-exp",
	"gemini-1.5-pro",
	"gemini-1.5-flash",
}

// Config carries per-deployment overrides. An empty BaseURL uses the SDK's
// default Gemini API endpoint.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Service adapts the Google GenAI SDK to ai.Service.
type Service struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.RWMutex
	key       string
	hasKey    bool
	client    *genai.Client
	clientErr error
}

// Option customizes the service.
type Option func(*Service)

// WithHTTPClient overrides the HTTP client handed to the SDK.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs the Gemini adapter. No SDK client exists until a key is set.
func New(cfg Config, opts ...Option) *Service {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = openaicompat.DefaultHTTPTimeout
	}
	svc := &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.logger = logging.NewComponentLogger(svc.logger, string(ai.ProviderGemini))
	return svc
}

func (s *Service) ID() ai.ProviderID {
	return ai.ProviderGemini
}

// SetAPIKey stores the key and rebuilds the SDK client; an empty key clears
// both. Client construction is local; a failure is reported by the next
// GenerateCompletion.
func (s *Service) SetAPIKey(key string) {
	var (
		client *genai.Client
		err    error
	)
	if key != "" {
		client, err = s.newClient(context.Background(), key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.hasKey = key != ""
	s.client = client
	s.clientErr = err
}

func (s *Service) APIKey() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.hasKey
}

// ValidateAPIKey sends a ten-token generation with a throwaway client for key.
func (s *Service) ValidateAPIKey(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%s: empty api key", ai.ProviderGemini)
	}
	client, err := s.newClient(ctx, key)
	if err != nil {
		return err
	}
	_, err = s.generate(ctx, client, s.cfg.Model, []*genai.Content{genai.NewContentFromText("Hi", genai.RoleUser)}, &genai.GenerateContentConfig{
		MaxOutputTokens: 10,
	})
	return err
}

// GenerateCompletion maps system messages to the system instruction and the
// remaining turns to user/model contents.
func (s *Service) GenerateCompletion(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error) {
	s.mu.RLock()
	client, clientErr, hasKey, key := s.client, s.clientErr, s.hasKey, s.key
	s.mu.RUnlock()
	if !hasKey || strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%s: %w", ai.ProviderGemini, ai.ErrProviderNotConfigured)
	}
	if clientErr != nil {
		return "", clientErr
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = s.cfg.Model
	}
	contents, config := buildRequest(messages, opts)
	return s.generate(ctx, client, model, contents, config)
}

func buildRequest(messages []ai.Message, opts ai.CompletionOptions) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, turns := ai.SplitSystem(messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		var role genai.Role = genai.RoleUser
		if turn.Role == ai.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	temperature := defaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if opts.TopP != nil {
		config.TopP = genai.Ptr(float32(*opts.TopP))
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, config
}

func (s *Service) generate(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	const op = "generate content"
	started := time.Now()
	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		s.logger.Debug("generate content failed",
			logging.String("model", model),
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		return "", mapError(op, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		empty := &openaicompat.EmptyContentError{}
		if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
			empty.FinishReason = string(resp.Candidates[0].FinishReason)
		}
		if resp.PromptFeedback != nil {
			empty.Refusal = string(resp.PromptFeedback.BlockReason)
		}
		return "", &ai.BackendError{Provider: ai.ProviderGemini, Op: op, StatusCode: http.StatusOK, Err: empty}
	}
	return text, nil
}

func (s *Service) newClient(ctx context.Context, key string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:     strings.TrimSpace(key),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.httpClient,
	}
	if s.cfg.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.cfg.BaseURL + "/"}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, &ai.BackendError{Provider: ai.ProviderGemini, Op: "new client", Err: err}
	}
	return client, nil
}

// mapError converts SDK errors to BackendError so status-based sentinels
// work the same as for the HTTP backends.
func mapError(op string, err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return ai.TransportError(ai.ProviderGemini, op, err)
	}
	body := strings.TrimSpace(apiErr.Status + " " + apiErr.Message)
	return &ai.BackendError{
		Provider:   ai.ProviderGemini,
		Op:         op,
		StatusCode: apiErr.Code,
		Body:       ai.TruncateBody(body),
	}
}

func (s *Service) AvailableModels() []string {
	return append([]string(nil), models...)
}

func (s *Service) ProviderInfo() ai.ProviderInfo {
	baseURL := s.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	return ai.ProviderInfo{
		Name:            ai.ProviderGemini,
		DisplayName:     "Google Gemini",
		Description:     "Google Gemini models via the GenAI SDK.",
		BaseURL:         baseURL,
		RequiresAPIKey:  true,
		DefaultModel:    s.cfg.Model,
		AvailableModels: s.AvailableModels(),
	}
}
