package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cara/internal/ai"
	"cara/internal/logging"
)

// DefaultHTTPTimeout bounds a single request when no timeout is configured.
const DefaultHTTPTimeout = 20 * time.Second

// Config captures what differs between OpenAI-shaped backends.
type Config struct {
	Provider ai.ProviderID
	// BaseURL is the API root; "/chat/completions" and "/models" are joined
	// onto it.
	BaseURL string
	Timeout time.Duration
	// Authorization turns a stored key into the Authorization header value.
	// Nil means "Bearer <key>".
	Authorization func(key string) string
}

// Client speaks the chat completions protocol. It performs exactly one HTTP
// exchange per call; retries belong to the caller.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, string(cfg.Provider))
	return client
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Request is one chat completion call. Nil pointers and zero values are
// omitted from the wire body.
type Request struct {
	Model       string
	Messages    []ai.Message
	Temperature *float64
	MaxTokens   int
	TopP        *float64
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Some providers return the streaming schema (delta) even when
		// stream=false, so tolerate it as a fallback.
		Delta chatCompletionMessage `json:"delta"`
		// Legacy "text" field (completion-style responses).
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

// EmptyContentError reports a 2xx response that carried no usable text.
type EmptyContentError struct {
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.FinishReason, e.Refusal, e.Snippet)
}

// Complete issues one chat completion and returns the first non-empty text.
func (c *Client) Complete(ctx context.Context, key string, req Request) (string, error) {
	const op = "chat completion"
	payload := chatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]chatMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	}
	for _, msg := range req.Messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", &ai.BackendError{Provider: c.cfg.Provider, Op: op, Err: fmt.Errorf("encode body: %w", err)}
	}

	status, body, err := c.do(ctx, http.MethodPost, "chat/completions", key, bytes.NewReader(encoded), op)
	if err != nil {
		return "", err
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", &ai.BackendError{
			Provider:   c.cfg.Provider,
			Op:         op,
			StatusCode: status,
			Body:       SummarizePayload(string(body)),
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	if completion.Error != nil && strings.TrimSpace(completion.Error.Message) != "" {
		return "", &ai.BackendError{
			Provider:   c.cfg.Provider,
			Op:         op,
			StatusCode: status,
			Err:        fmt.Errorf("api error: %s", strings.TrimSpace(completion.Error.Message)),
		}
	}

	content, finishReason, refusal := extractCompletion(completion)
	if content == "" {
		empty := &EmptyContentError{FinishReason: finishReason, Refusal: refusal, Snippet: SummarizePayload(string(body))}
		c.logger.Warn("completion returned no content",
			logging.String("finish_reason", finishReason),
			logging.Int("choices", len(completion.Choices)),
		)
		return "", &ai.BackendError{Provider: c.cfg.Provider, Op: op, StatusCode: status, Err: empty}
	}
	return content, nil
}

// ListModels issues GET /models, used as a cheap credential probe.
func (c *Client) ListModels(ctx context.Context, key string) error {
	_, _, err := c.do(ctx, http.MethodGet, "models", key, nil, "list models")
	return err
}

func (c *Client) do(ctx context.Context, method, path, key string, body io.Reader, op string) (int, []byte, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return 0, nil, &ai.BackendError{Provider: c.cfg.Provider, Op: op, Err: fmt.Errorf("build url: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, &ai.BackendError{Provider: c.cfg.Provider, Op: op, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Authorization", c.authorization(key))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed before response",
			logging.String("endpoint", endpoint),
			logging.Duration("timeout", c.cfg.Timeout),
			logging.Error(err),
		)
		return 0, nil, ai.TransportError(c.cfg.Provider, op, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, ai.TransportError(c.cfg.Provider, op, fmt.Errorf("read body: %w", err))
	}
	c.logger.Debug("response received",
		logging.String("endpoint", endpoint),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
	)
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := ParseRetryAfter(resp.Header.Get("Retry-After"))
		return resp.StatusCode, payload, ai.NewStatusError(c.cfg.Provider, op, resp.StatusCode, string(payload), retryAfter)
	}
	return resp.StatusCode, payload, nil
}

func (c *Client) authorization(key string) string {
	if c.cfg.Authorization != nil {
		return c.cfg.Authorization(key)
	}
	return "Bearer " + strings.TrimSpace(key)
}

func extractCompletion(completion chatCompletionResponse) (content, finishReason, refusal string) {
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if text := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); text != "" {
			return text, finishReason, refusal
		}
	}
	return "", finishReason, refusal
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// ParseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

// SummarizePayload collapses whitespace and truncates a response body for
// error messages.
func SummarizePayload(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
