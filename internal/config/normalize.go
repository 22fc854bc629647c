package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAI()
	if err := c.normalizeCredentials(); err != nil {
		return err
	}
	c.normalizePrompt()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAI() {
	c.AI.CurrentProvider = strings.ToLower(strings.TrimSpace(c.AI.CurrentProvider))
	if c.AI.CurrentProvider == "" {
		c.AI.CurrentProvider = defaultCurrentProvider
	}
	if c.AI.Providers == nil {
		c.AI.Providers = map[string]Provider{}
	}
	normalized := make(map[string]Provider, len(c.AI.Providers))
	for id, settings := range c.AI.Providers {
		key := strings.ToLower(strings.TrimSpace(id))
		settings.BaseURL = strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
		settings.Model = strings.TrimSpace(settings.Model)
		normalized[key] = settings
	}
	c.AI.Providers = normalized
}

func (c *Config) normalizeCredentials() error {
	c.Credentials.Backend = strings.ToLower(strings.TrimSpace(c.Credentials.Backend))
	if c.Credentials.Backend == "" {
		c.Credentials.Backend = CredentialBackendSQLite
	}
	var err error
	if c.Credentials.Path, err = expandPath(strings.TrimSpace(c.Credentials.Path)); err != nil {
		return fmt.Errorf("credentials.path: %w", err)
	}
	if value, ok := os.LookupEnv(SecretEnv); ok && strings.TrimSpace(value) != "" {
		c.Credentials.Secret = strings.TrimSpace(value)
	}
	return nil
}

func (c *Config) normalizePrompt() {
	c.Prompt.Language = strings.TrimSpace(c.Prompt.Language)
	if c.Prompt.Language == "" {
		c.Prompt.Language = defaultPromptLanguage
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
