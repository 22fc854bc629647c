package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Provider holds per-backend overrides. Empty fields fall back to the
// adapter's built-in defaults.
type Provider struct {
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	SpacingMS int    `toml:"spacing_ms"`
}

// AI contains provider selection, timeouts, and the request governor policy.
type AI struct {
	CurrentProvider  string              `toml:"current_provider"`
	TimeoutSeconds   int                 `toml:"timeout_seconds"`
	SpacingMS        int                 `toml:"spacing_ms"`
	RetryAttempts    int                 `toml:"retry_attempts"`
	RetryBaseDelayMS int                 `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS  int                 `toml:"retry_max_delay_ms"`
	Providers        map[string]Provider `toml:"providers"`
}

// Credentials selects where provider keys are persisted.
type Credentials struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	Secret  string `toml:"secret"`
}

// Prompt contains prompt builder settings.
type Prompt struct {
	Language string `toml:"language"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cara.
//
// Configuration sections:
//   - Paths: data and log directories
//   - AI: current provider, timeouts, spacing, retry policy, per-provider overrides
//   - Credentials: key store backend, location, and encryption secret
//   - Prompt: local language for bilingual output
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	AI          AI          `toml:"ai"`
	Credentials Credentials `toml:"credentials"`
	Prompt      Prompt      `toml:"prompt"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cara.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// RequestTimeout returns the per-request HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

// ProviderSettings returns the resolved overrides for one provider id,
// applying the built-in spacing when none is configured.
func (c *Config) ProviderSettings(id string) Provider {
	id = strings.ToLower(strings.TrimSpace(id))
	settings := c.AI.Providers[id]
	settings.BaseURL = strings.TrimSpace(settings.BaseURL)
	settings.Model = strings.TrimSpace(settings.Model)
	if settings.SpacingMS <= 0 {
		if spacing, ok := defaultProviderSpacingMS[id]; ok {
			settings.SpacingMS = spacing
		} else {
			settings.SpacingMS = c.AI.SpacingMS
		}
	}
	return settings
}

// Spacing returns the minimum dispatch gap for one provider id.
func (c *Config) Spacing(id string) time.Duration {
	return time.Duration(c.ProviderSettings(id).SpacingMS) * time.Millisecond
}

// RetryBaseDelay returns the first backoff wait.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.AI.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff ceiling.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.AI.RetryMaxDelayMS) * time.Millisecond
}

// CredentialsPath returns the store location, derived from the data directory
// when not set explicitly.
func (c *Config) CredentialsPath() string {
	if path := strings.TrimSpace(c.Credentials.Path); path != "" {
		return path
	}
	name := "credentials.db"
	if c.Credentials.Backend == CredentialBackendFile {
		name = "credentials.json"
	}
	return filepath.Join(c.Paths.DataDir, name)
}
