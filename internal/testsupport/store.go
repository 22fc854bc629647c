package testsupport

import (
	"testing"

	"cara/internal/ai"
	"cara/internal/config"
	"cara/internal/credentials"
)

// MustOpenCredentialStore opens the configured credential store for tests and
// registers cleanup.
func MustOpenCredentialStore(t testing.TB, cfg *config.Config) ai.CredentialStore {
	t.Helper()

	store, err := credentials.Open(cfg, nil)
	if err != nil {
		t.Fatalf("credentials.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
