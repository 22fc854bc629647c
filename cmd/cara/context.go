package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"cara/internal/ai"
	"cara/internal/config"
	"cara/internal/credentials"
	"cara/internal/logging"
	"cara/internal/prompt"
	"cara/internal/providers"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	store credentials.Store
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) credentialStore() (credentials.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := credentials.Open(cfg, c.loggerValue())
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	c.store = store
	return store, nil
}

// manager builds a provider manager backed by the credential store and loads
// the stored keys.
func (c *commandContext) manager(ctx context.Context) (*ai.Manager, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.credentialStore()
	if err != nil {
		return nil, err
	}
	m, err := providers.NewManager(cfg,
		providers.WithCredentialStore(store),
		providers.WithLogger(c.loggerValue()),
	)
	if err != nil {
		return nil, err
	}
	if err := m.Sync(ctx); err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return m, nil
}

func (c *commandContext) promptBuilder() (*prompt.Builder, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return prompt.NewBuilderForLanguage(cfg.Prompt.Language)
}

func (c *commandContext) close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
