package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a completion request. Order is significant.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionOptions tunes a single completion. Zero values mean "use the
// adapter default".
type CompletionOptions struct {
	Temperature *float64
	MaxTokens   int
	TopP        *float64
	Model       string
	// Provider overrides the manager's current provider for one call.
	Provider ProviderID
}

// Float returns a pointer to v, for the optional option fields.
func Float(v float64) *float64 {
	return &v
}

// ProviderID names one of the supported completion backends.
type ProviderID string

const (
	ProviderClaude      ProviderID = "claude"
	ProviderDeepSeek    ProviderID = "deepseek"
	ProviderGemini      ProviderID = "gemini"
	ProviderGLM         ProviderID = "glm"
	ProviderVolcEngine  ProviderID = "volcengine"
	ProviderSiliconFlow ProviderID = "siliconflow"
)

var allProviders = []ProviderID{
	ProviderClaude,
	ProviderDeepSeek,
	ProviderGemini,
	ProviderGLM,
	ProviderVolcEngine,
	ProviderSiliconFlow,
}

// AllProviders returns every supported provider in display order.
func AllProviders() []ProviderID {
	out := make([]ProviderID, len(allProviders))
	copy(out, allProviders)
	return out
}

// Valid reports whether id is a member of the supported set.
func (id ProviderID) Valid() bool {
	for _, p := range allProviders {
		if p == id {
			return true
		}
	}
	return false
}

func (id ProviderID) String() string {
	return string(id)
}

// ParseProviderID normalizes value and returns the matching provider.
func ParseProviderID(value string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(value)))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, value)
	}
	return id, nil
}

// ProviderConfig is the manager's view of one provider. Enabled is only true
// after a key has passed validation.
type ProviderConfig struct {
	Type    ProviderID `json:"type"`
	APIKey  string     `json:"-"`
	Model   string     `json:"model,omitempty"`
	Enabled bool       `json:"enabled"`
}

// ExportedConfig is the shape handed to persistence. It deliberately has no
// key field.
type ExportedConfig struct {
	Type    ProviderID `json:"type"`
	Enabled bool       `json:"enabled"`
	Model   string     `json:"model,omitempty"`
}

// ProviderInfo describes a backend for display and selection.
type ProviderInfo struct {
	Name            ProviderID `json:"name"`
	DisplayName     string     `json:"displayName"`
	Description     string     `json:"description"`
	BaseURL         string     `json:"baseUrl,omitempty"`
	RequiresAPIKey  bool       `json:"requiresApiKey"`
	DefaultModel    string     `json:"defaultModel,omitempty"`
	AvailableModels []string   `json:"availableModels"`
}

// ProviderStatus pairs a descriptor with the current (redacted) config.
type ProviderStatus struct {
	Info    ProviderInfo   `json:"info"`
	Config  ProviderConfig `json:"config"`
	Current bool           `json:"current"`
}

// Service is implemented once per backend.
type Service interface {
	ID() ProviderID
	// SetAPIKey stores the credential and rebuilds any client. It never
	// touches the network.
	SetAPIKey(key string)
	APIKey() (string, bool)
	// ValidateAPIKey performs a minimal live call with key. A nil error
	// means the key works.
	ValidateAPIKey(ctx context.Context, key string) error
	GenerateCompletion(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
	AvailableModels() []string
	ProviderInfo() ProviderInfo
}

// Credential is one provider's persisted credential, in plaintext at the
// point of use.
type Credential struct {
	APIKey    string    `json:"apiKey"`
	Enabled   bool      `json:"enabled"`
	Model     string    `json:"model,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Locked marks a stored key that could not be decrypted. APIKey is empty
	// and Enabled false; saving a Locked credential keeps the stored key and
	// enabled flag and only updates the model.
	Locked bool `json:"-"`
}

// CredentialState is everything a credential store loads and saves.
type CredentialState struct {
	Current   ProviderID                `json:"currentProvider,omitempty"`
	Providers map[ProviderID]Credential `json:"providers"`
}

// CredentialStore persists provider credentials out of band. Implementations
// own encryption at rest.
type CredentialStore interface {
	Load(ctx context.Context) (CredentialState, error)
	Save(ctx context.Context, state CredentialState) error
}

// SplitSystem separates system messages from the conversation turns. System
// contents are joined with a blank line.
func SplitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, text)
			}
			continue
		}
		turns = append(turns, msg)
	}
	return strings.Join(system, "\n\n"), turns
}
