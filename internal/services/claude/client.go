package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"cara/internal/ai"
	"cara/internal/logging"
	"cara/internal/services/openaicompat"
)

const (
	defaultBaseURL     = "https://api.anthropic.com"
	defaultModel       = "claude-3-5-sonnet-20241022"
	defaultMaxTokens   = 4096
	defaultTemperature = 0.3
	apiVersion         = "2023-06-01"
)

var models = []string{
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// Config carries per-deployment overrides.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Service talks to the Anthropic Messages API.
type Service struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.RWMutex
	key    string
	hasKey bool
}

// Option customizes the service.
type Option func(*Service)

// WithHTTPClient overrides the default HTTP client.
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

// New constructs the Claude adapter.
func New(cfg Config, opts ...Option) *Service {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
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
	svc.logger = logging.NewComponentLogger(svc.logger, string(ai.ProviderClaude))
	return svc
}

func (s *Service) ID() ai.ProviderID {
	return ai.ProviderClaude
}

// SetAPIKey stores the key; an empty key clears it. No network call is made.
func (s *Service) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.hasKey = key != ""
}

func (s *Service) APIKey() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.hasKey
}

// ValidateAPIKey sends a ten-token message using key.
func (s *Service) ValidateAPIKey(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%s: empty api key", ai.ProviderClaude)
	}
	_, err := s.send(ctx, key, messagesRequest{
		Model:     s.cfg.Model,
		MaxTokens: 10,
		Messages:  []message{{Role: string(ai.RoleUser), Content: "Hi"}},
	})
	return err
}

// GenerateCompletion hoists system messages into the system field and sends
// the remaining turns in order.
func (s *Service) GenerateCompletion(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error) {
	key, ok := s.APIKey()
	if !ok || strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%s: %w", ai.ProviderClaude, ai.ErrProviderNotConfigured)
	}
	return s.send(ctx, key, s.buildRequest(messages, opts))
}

func (s *Service) buildRequest(messages []ai.Message, opts ai.CompletionOptions) messagesRequest {
	system, turns := ai.SplitSystem(messages)
	req := messagesRequest{
		Model:       strings.TrimSpace(opts.Model),
		MaxTokens:   opts.MaxTokens,
		System:      system,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Messages:    make([]message, 0, len(turns)),
	}
	if req.Model == "" {
		req.Model = s.cfg.Model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if req.Temperature == nil {
		req.Temperature = ai.Float(defaultTemperature)
	}
	for _, turn := range turns {
		req.Messages = append(req.Messages, message{Role: string(turn.Role), Content: turn.Content})
	}
	return req
}

func (s *Service) AvailableModels() []string {
	return append([]string(nil), models...)
}

func (s *Service) ProviderInfo() ai.ProviderInfo {
	return ai.ProviderInfo{
		Name:            ai.ProviderClaude,
		DisplayName:     "Claude (Anthropic)",
		Description:     "Anthropic Claude models via the Messages API.",
		BaseURL:         s.cfg.BaseURL,
		RequiresAPIKey:  true,
		DefaultModel:    s.cfg.Model,
		AvailableModels: s.AvailableModels(),
	}
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Service) send(ctx context.Context, key string, payload messagesRequest) (string, error) {
	const op = "messages"
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", &ai.BackendError{Provider: ai.ProviderClaude, Op: op, Err: fmt.Errorf("encode body: %w", err)}
	}
	endpoint, err := url.JoinPath(s.cfg.BaseURL, "v1", "messages")
	if err != nil {
		return "", &ai.BackendError{Provider: ai.ProviderClaude, Op: op, Err: fmt.Errorf("build url: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", &ai.BackendError{Provider: ai.ProviderClaude, Op: op, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("x-api-key", strings.TrimSpace(key))
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug("request failed before response",
			logging.String("endpoint", endpoint),
			logging.Duration("timeout", s.cfg.Timeout),
			logging.Error(err),
		)
		return "", ai.TransportError(ai.ProviderClaude, op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ai.TransportError(ai.ProviderClaude, op, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := openaicompat.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return "", ai.NewStatusError(ai.ProviderClaude, op, resp.StatusCode, string(body), retryAfter)
	}

	var decoded messagesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", &ai.BackendError{
			Provider:   ai.ProviderClaude,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       openaicompat.SummarizePayload(string(body)),
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	if decoded.Error != nil && strings.TrimSpace(decoded.Error.Message) != "" {
		return "", &ai.BackendError{
			Provider:   ai.ProviderClaude,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("api error: %s", strings.TrimSpace(decoded.Error.Message)),
		}
	}

	var parts []string
	for _, block := range decoded.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return "", &ai.BackendError{
			Provider:   ai.ProviderClaude,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err: &openaicompat.EmptyContentError{
				FinishReason: decoded.StopReason,
				Snippet:      openaicompat.SummarizePayload(string(body)),
			},
		}
	}
	return text, nil
}
