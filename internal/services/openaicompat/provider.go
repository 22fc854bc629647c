package openaicompat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cara/internal/ai"
)

// DefaultMaxTokens is the completion budget when the caller sets none.
const DefaultMaxTokens = 4096

const defaultTemperature = 0.3

// Defaults are applied when CompletionOptions leaves a value unset.
type Defaults struct {
	Model       string
	Temperature float64
	TopP        *float64
	MaxTokens   int
}

// Provider implements ai.Service on top of Client. Backends embed it and
// override only what differs.
type Provider struct {
	info     ai.ProviderInfo
	defaults Defaults
	client   *Client

	mu     sync.RWMutex
	key    string
	hasKey bool
}

// NewProvider wires a descriptor, defaults, and transport together.
func NewProvider(info ai.ProviderInfo, defaults Defaults, client *Client) *Provider {
	if defaults.Model == "" {
		defaults.Model = info.DefaultModel
	}
	if defaults.Temperature == 0 {
		defaults.Temperature = defaultTemperature
	}
	if defaults.MaxTokens <= 0 {
		defaults.MaxTokens = DefaultMaxTokens
	}
	info.DefaultModel = defaults.Model
	info.AvailableModels = append([]string(nil), info.AvailableModels...)
	return &Provider{info: info, defaults: defaults, client: client}
}

func (p *Provider) ID() ai.ProviderID {
	return p.info.Name
}

// Client exposes the transport for backends that need extra calls.
func (p *Provider) Client() *Client {
	return p.client
}

// SetAPIKey stores the key exactly as given; an empty key clears it. No
// network call is made.
func (p *Provider) SetAPIKey(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = key
	p.hasKey = key != ""
}

// APIKey returns the last key set, or false once it was cleared.
func (p *Provider) APIKey() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key, p.hasKey
}

// ValidateAPIKey sends a ten-token completion using key.
func (p *Provider) ValidateAPIKey(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%s: empty api key", p.info.Name)
	}
	_, err := p.client.Complete(ctx, key, Request{
		Model:     p.defaults.Model,
		Messages:  []ai.Message{{Role: ai.RoleUser, Content: "Hi"}},
		MaxTokens: 10,
	})
	return err
}

// GenerateCompletion sends messages in order with the backend defaults filled in.
func (p *Provider) GenerateCompletion(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error) {
	key, ok := p.APIKey()
	if !ok || strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%s: %w", p.info.Name, ai.ErrProviderNotConfigured)
	}
	return p.client.Complete(ctx, key, p.Request(messages, opts))
}

// Request resolves opts against the backend defaults.
func (p *Provider) Request(messages []ai.Message, opts ai.CompletionOptions) Request {
	req := Request{
		Model:       strings.TrimSpace(opts.Model),
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
	}
	if req.Model == "" {
		req.Model = p.defaults.Model
	}
	if req.Temperature == nil {
		req.Temperature = ai.Float(p.defaults.Temperature)
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = p.defaults.MaxTokens
	}
	if req.TopP == nil && p.defaults.TopP != nil {
		req.TopP = ai.Float(*p.defaults.TopP)
	}
	return req
}

func (p *Provider) AvailableModels() []string {
	return append([]string(nil), p.info.AvailableModels...)
}

func (p *Provider) ProviderInfo() ai.ProviderInfo {
	info := p.info
	info.BaseURL = p.client.BaseURL()
	info.AvailableModels = p.AvailableModels()
	return info
}
