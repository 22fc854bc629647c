package config

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAI(); err != nil {
		return err
	}
	if err := c.validateCredentials(); err != nil {
		return err
	}
	if err := c.validatePrompt(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAI() error {
	if !isKnownProvider(c.AI.CurrentProvider) {
		return fmt.Errorf("ai.current_provider %q is not one of %s", c.AI.CurrentProvider, strings.Join(knownProviders, ", "))
	}
	if c.AI.TimeoutSeconds <= 0 {
		return errors.New("ai.timeout_seconds must be positive")
	}
	if c.AI.SpacingMS < 0 {
		return errors.New("ai.spacing_ms must be >= 0")
	}
	if c.AI.RetryAttempts <= 0 {
		return errors.New("ai.retry_attempts must be positive")
	}
	if c.AI.RetryBaseDelayMS < 0 {
		return errors.New("ai.retry_base_delay_ms must be >= 0")
	}
	if c.AI.RetryMaxDelayMS < c.AI.RetryBaseDelayMS {
		return errors.New("ai.retry_max_delay_ms must be >= ai.retry_base_delay_ms")
	}
	for id, settings := range c.AI.Providers {
		if !isKnownProvider(id) {
			return fmt.Errorf("ai.providers.%s: unknown provider", id)
		}
		if settings.SpacingMS < 0 {
			return fmt.Errorf("ai.providers.%s.spacing_ms must be >= 0", id)
		}
		if settings.BaseURL != "" && !strings.HasPrefix(settings.BaseURL, "http://") && !strings.HasPrefix(settings.BaseURL, "https://") {
			return fmt.Errorf("ai.providers.%s.base_url must be an http(s) URL", id)
		}
	}
	return nil
}

func (c *Config) validateCredentials() error {
	switch c.Credentials.Backend {
	case CredentialBackendSQLite, CredentialBackendFile:
		return nil
	default:
		return fmt.Errorf("credentials.backend must be %q or %q", CredentialBackendSQLite, CredentialBackendFile)
	}
}

func (c *Config) validatePrompt() error {
	if _, err := language.Parse(c.Prompt.Language); err != nil {
		return fmt.Errorf("prompt.language: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}
