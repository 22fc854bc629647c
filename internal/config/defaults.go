package config

const (
	defaultConfigPath       = "~/.config/cara/config.toml"
	defaultDataDir          = "~/.local/share/cara"
	defaultLogDir           = "~/.local/share/cara/logs"
	defaultCurrentProvider  = "gemini"
	defaultTimeoutSeconds   = 20
	defaultSpacingMS        = 300
	defaultRetryAttempts    = 3
	defaultRetryBaseDelayMS = 1000
	defaultRetryMaxDelayMS  = 8000
	defaultPromptLanguage   = "zh-Hans"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"

	// CredentialBackendSQLite stores keys in a local SQLite database.
	CredentialBackendSQLite = "sqlite"
	// CredentialBackendFile stores keys in a locked JSON file.
	CredentialBackendFile = "file"

	// SecretEnv overrides credentials.secret when set.
	SecretEnv = "CARA_CREDENTIALS_SECRET"
)

// knownProviders mirrors the closed provider set; config stays free of the ai
// package so logging can depend on it.
var knownProviders = []string{"claude", "deepseek", "gemini", "glm", "volcengine", "siliconflow"}

// SiliconFlow rejects bursts more aggressively than the others.
var defaultProviderSpacingMS = map[string]int{
	"siliconflow": 500,
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		AI: AI{
			CurrentProvider:  defaultCurrentProvider,
			TimeoutSeconds:   defaultTimeoutSeconds,
			SpacingMS:        defaultSpacingMS,
			RetryAttempts:    defaultRetryAttempts,
			RetryBaseDelayMS: defaultRetryBaseDelayMS,
			RetryMaxDelayMS:  defaultRetryMaxDelayMS,
			Providers:        map[string]Provider{},
		},
		Credentials: Credentials{
			Backend: CredentialBackendSQLite,
		},
		Prompt: Prompt{
			Language: defaultPromptLanguage,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func isKnownProvider(id string) bool {
	for _, known := range knownProviders {
		if known == id {
			return true
		}
	}
	return false
}
