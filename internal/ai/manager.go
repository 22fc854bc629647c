package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cara/internal/governor"
	"cara/internal/logging"
)

// DefaultProvider is current until configuration or the credential store says
// otherwise.
const DefaultProvider = ProviderGemini

// SiliconFlowSpacing is the wider dispatch gap SiliconFlow needs.
const SiliconFlowSpacing = 500 * time.Millisecond

// IsRetryable reports whether err should be retried by the governor. Only
// rate-limit responses qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// NewGovernor returns a governor with the default per-provider spacing and the
// rate-limit retry policy. Later options win.
func NewGovernor(opts ...governor.Option) *governor.Governor {
	base := []governor.Option{
		governor.WithSpacing(string(ProviderSiliconFlow), SiliconFlowSpacing),
		governor.WithRetryPolicy(governor.DefaultRetryPolicy(IsRetryable)),
	}
	return governor.New(append(base, opts...)...)
}

type entry struct {
	config    ProviderConfig
	updatedAt time.Time
	// keyChanged is set once the key was explicitly replaced or cleared, so a
	// locked stored key may be overwritten.
	keyChanged bool
}

// Manager routes completions to the current (or overridden) provider and
// tracks which providers hold a validated key.
type Manager struct {
	services map[ProviderID]Service
	governor *governor.Governor
	store    CredentialStore
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[ProviderID]*entry
	current ProviderID
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithGovernor replaces the default governor.
func WithGovernor(g *governor.Governor) ManagerOption {
	return func(m *Manager) {
		if g != nil {
			m.governor = g
		}
	}
}

// WithCredentialStore attaches the out-of-band key store used by Sync and by
// key write-back.
func WithCredentialStore(store CredentialStore) ManagerOption {
	return func(m *Manager) {
		m.store = store
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCurrentProvider sets the initial current provider. Invalid ids are
// ignored.
func WithCurrentProvider(id ProviderID) ManagerOption {
	return func(m *Manager) {
		if id.Valid() {
			m.current = id
		}
	}
}

// WithProviderModels seeds per-provider default models, typically from
// configuration.
func WithProviderModels(models map[ProviderID]string) ManagerOption {
	return func(m *Manager) {
		for id, model := range models {
			if e, ok := m.entries[id]; ok {
				e.config.Model = strings.TrimSpace(model)
			}
		}
	}
}

// WithClock overrides the time source used for credential timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds the façade. services must contain exactly one adapter per
// supported provider.
func NewManager(services []Service, opts ...ManagerOption) (*Manager, error) {
	registry := make(map[ProviderID]Service, len(allProviders))
	for _, svc := range services {
		if svc == nil {
			return nil, errors.New("ai manager: nil service")
		}
		id := svc.ID()
		if !id.Valid() {
			return nil, fmt.Errorf("ai manager: %w: %q", ErrUnknownProvider, id)
		}
		if _, dup := registry[id]; dup {
			return nil, fmt.Errorf("ai manager: duplicate service for %s", id)
		}
		registry[id] = svc
	}
	for _, id := range allProviders {
		if _, ok := registry[id]; !ok {
			return nil, fmt.Errorf("ai manager: missing service for %s", id)
		}
	}

	m := &Manager{
		services: registry,
		logger:   logging.NewNop(),
		now:      time.Now,
		entries:  make(map[ProviderID]*entry, len(allProviders)),
		current:  DefaultProvider,
	}
	for _, id := range allProviders {
		m.entries[id] = &entry{config: ProviderConfig{Type: id}}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.governor == nil {
		m.governor = NewGovernor(governor.WithLogger(m.logger))
	}
	m.logger = logging.NewComponentLogger(m.logger, "ai")
	return m, nil
}

func (m *Manager) service(id ProviderID) (Service, error) {
	svc, ok := m.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return svc, nil
}

// SetCurrentProvider changes the default target for completions.
func (m *Manager) SetCurrentProvider(id ProviderID) error {
	if _, err := m.service(id); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = id
	m.mu.Unlock()
	return nil
}

// CurrentProvider returns the default target for completions.
func (m *Manager) CurrentProvider() ProviderID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetProviderAPIKey validates key with a live call. On failure the error
// wraps ErrInvalidAPIKey and the stored configuration is left as it was. On
// success the key is applied, the provider enabled, and the credential
// written back to the store.
func (m *Manager) SetProviderAPIKey(ctx context.Context, id ProviderID, key string) error {
	svc, err := m.service(id)
	if err != nil {
		return err
	}
	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldProvider, string(id)))
	logger.Info("validating api key", logging.Args(logging.KeyPresence(key)...)...)

	err = m.governor.Do(ctx, string(id), func(ctx context.Context) error {
		return svc.ValidateAPIKey(ctx, key)
	})
	if err != nil {
		logger.Warn("api key rejected", logging.Error(err))
		return fmt.Errorf("%s: %w: %w", id, ErrInvalidAPIKey, err)
	}

	svc.SetAPIKey(key)
	m.mu.Lock()
	e := m.entries[id]
	e.config.APIKey = key
	e.config.Enabled = true
	e.updatedAt = m.now()
	e.keyChanged = true
	m.mu.Unlock()
	logger.Info("api key validated")

	return m.persist(ctx, id)
}

// ClearProviderAPIKey forgets the key and disables the provider.
func (m *Manager) ClearProviderAPIKey(ctx context.Context, id ProviderID) error {
	svc, err := m.service(id)
	if err != nil {
		return err
	}
	svc.SetAPIKey("")
	m.mu.Lock()
	e := m.entries[id]
	e.config.APIKey = ""
	e.config.Enabled = false
	e.updatedAt = m.now()
	e.keyChanged = true
	m.mu.Unlock()
	return m.persist(ctx, id)
}

// SetProviderModel sets the model used when a call does not name one. An empty
// model restores the adapter default.
func (m *Manager) SetProviderModel(id ProviderID, model string) error {
	if _, err := m.service(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.config.Model = strings.TrimSpace(model)
	e.updatedAt = m.now()
	return nil
}

// GenerateCompletion sends messages to opts.Provider, or the current provider
// when unset. Unconfigured providers fail without a network call; the rest go
// through the governor.
func (m *Manager) GenerateCompletion(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	m.mu.RLock()
	id := opts.Provider
	if id == "" {
		id = m.current
	}
	e, known := m.entries[id]
	var cfg ProviderConfig
	if known {
		cfg = e.config
	}
	m.mu.RUnlock()

	svc, err := m.service(id)
	if err != nil || !known {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	if !cfg.Enabled {
		return "", fmt.Errorf("%s: %w", id, ErrProviderNotConfigured)
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = cfg.Model
	}
	opts.Provider = id

	logger := logging.WithContext(ctx, m.logger)
	attrs := append([]logging.Attr{
		logging.String(logging.FieldProvider, string(id)),
		logging.String("model", opts.Model),
		logging.Int("messages", len(messages)),
	}, logging.KeyPresence(cfg.APIKey)...)
	logger.Info("provider selected", logging.Args(attrs...)...)

	var text string
	started := time.Now()
	err = m.governor.Do(ctx, string(id), func(ctx context.Context) error {
		var callErr error
		text, callErr = svc.GenerateCompletion(ctx, messages, opts)
		return callErr
	})
	if err != nil {
		logger.Error("completion failed",
			logging.String(logging.FieldProvider, string(id)),
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		return "", err
	}
	logger.Debug("completion succeeded",
		logging.String(logging.FieldProvider, string(id)),
		logging.Duration("elapsed", time.Since(started)),
		logging.Int("chars", len([]rune(text))),
	)
	return text, nil
}

// IsProviderConfigured reports whether id holds a validated key.
func (m *Manager) IsProviderConfigured(id ProviderID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return ok && e.config.Enabled
}

// ProviderConfig returns a copy of the configuration for id.
func (m *Manager) ProviderConfig(id ProviderID) (ProviderConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return e.config, nil
}

// ProviderInfo returns the adapter descriptor for id.
func (m *Manager) ProviderInfo(id ProviderID) (ProviderInfo, error) {
	svc, err := m.service(id)
	if err != nil {
		return ProviderInfo{}, err
	}
	return svc.ProviderInfo(), nil
}

// AllProviders lists every provider with its descriptor and a key-free copy
// of its configuration.
func (m *Manager) AllProviders() []ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ProviderStatus, 0, len(allProviders))
	for _, id := range allProviders {
		cfg := m.entries[id].config
		cfg.APIKey = ""
		out = append(out, ProviderStatus{
			Info:    m.services[id].ProviderInfo(),
			Config:  cfg,
			Current: id == m.current,
		})
	}
	return out
}

// KeyStatus reports whether a key is stored for id and its length.
func (m *Manager) KeyStatus(id ProviderID) (present bool, length int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return false, 0, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	key := e.config.APIKey
	return key != "", len(key), nil
}

// ExportConfigs returns the persistable, key-free view of every provider.
func (m *Manager) ExportConfigs() map[ProviderID]ExportedConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[ProviderID]ExportedConfig, len(m.entries))
	for id, e := range m.entries {
		out[id] = ExportedConfig{Type: id, Enabled: e.config.Enabled, Model: e.config.Model}
	}
	return out
}

// ImportConfigs applies exported model and enabled flags. A provider is only
// enabled when its adapter already holds a key.
func (m *Manager) ImportConfigs(configs map[ProviderID]ExportedConfig) error {
	for id := range configs {
		if !id.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownProvider, id)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, imported := range configs {
		e := m.entries[id]
		e.config.Model = strings.TrimSpace(imported.Model)
		key, ok := m.services[id].APIKey()
		e.config.Enabled = imported.Enabled && ok && strings.TrimSpace(key) != ""
		if e.config.Enabled {
			e.config.APIKey = key
		}
	}
	return nil
}

// Sync reads the credential store and applies keys, enabled flags, models, and
// the current provider. Providers absent from the store keep their state.
func (m *Manager) Sync(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	state, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cred := range state.Providers {
		e, ok := m.entries[id]
		if !ok {
			m.logger.Warn("ignoring stored credential for unknown provider", logging.String(logging.FieldProvider, string(id)))
			continue
		}
		m.services[id].SetAPIKey(cred.APIKey)
		e.config.APIKey = cred.APIKey
		e.config.Enabled = cred.Enabled && strings.TrimSpace(cred.APIKey) != ""
		if cred.Model != "" {
			e.config.Model = cred.Model
		}
		e.updatedAt = cred.UpdatedAt
		e.keyChanged = false
	}
	if state.Current.Valid() {
		m.current = state.Current
	}
	return nil
}

// Persist writes the current provider and every provider's credential to the
// store.
func (m *Manager) Persist(ctx context.Context) error {
	return m.persist(ctx, allProviders...)
}

// persist performs a load-modify-write so entries for other providers that
// changed in the store are kept.
func (m *Manager) persist(ctx context.Context, ids ...ProviderID) error {
	if m.store == nil {
		return nil
	}
	state, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if state.Providers == nil {
		state.Providers = make(map[ProviderID]Credential)
	}

	m.mu.RLock()
	for _, id := range ids {
		e := m.entries[id]
		if stored, ok := state.Providers[id]; ok && stored.Locked && !e.keyChanged {
			// Keep a key this process cannot decrypt; only the model may change.
			if e.config.Model != "" {
				stored.Model = e.config.Model
			}
			state.Providers[id] = stored
			continue
		}
		if e.config.APIKey == "" && e.config.Model == "" && !e.config.Enabled {
			delete(state.Providers, id)
			continue
		}
		updated := e.updatedAt
		if updated.IsZero() {
			updated = m.now()
		}
		state.Providers[id] = Credential{
			APIKey:    e.config.APIKey,
			Enabled:   e.config.Enabled,
			Model:     e.config.Model,
			UpdatedAt: updated,
		}
	}
	state.Current = m.current
	m.mu.RUnlock()

	if err := m.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}
