package credentials

import (
	"fmt"
	"log/slog"
	"time"

	"cara/internal/ai"
	"cara/internal/config"
	"cara/internal/logging"
)

// Store is a closable credential store.
type Store interface {
	ai.CredentialStore
	Close() error
}

// Open builds the backend selected by cfg.Credentials.Backend.
func Open(cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("credentials: config is nil")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	path := cfg.CredentialsPath()
	switch cfg.Credentials.Backend {
	case config.CredentialBackendFile:
		return OpenFile(path, cfg.Credentials.Secret, logger)
	case config.CredentialBackendSQLite, "":
		return OpenSQLite(path, cfg.Credentials.Secret, logger)
	default:
		return nil, fmt.Errorf("credentials: unknown backend %q", cfg.Credentials.Backend)
	}
}

func prepareSealer(secret, backend string, logger *slog.Logger) *sealer {
	s := newSealer(secret)
	if !s.enabled() {
		logger.Warn("credential secret not set; keys are stored in plaintext",
			logging.String("backend", backend),
			logging.String("hint", "set credentials.secret or "+config.SecretEnv),
		)
	}
	return s
}

// openKey decrypts a stored key. A key that no longer opens comes back empty
// and locked, with a warning, so the provider reads as unconfigured instead of
// failing every load. Save writes locked keys back untouched.
func openKey(s *sealer, logger *slog.Logger, id ai.ProviderID, stored string) (string, bool) {
	key, err := s.open(stored)
	if err != nil {
		logger.Warn("stored key could not be decrypted; treating provider as unconfigured",
			logging.String(logging.FieldProvider, string(id)),
			logging.Error(err),
		)
		return "", true
	}
	return key, false
}

func componentLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = logging.NewNop()
	}
	return logging.NewComponentLogger(logger, "credentials")
}

const lockRetryDelay = 50 * time.Millisecond

var now = time.Now
