package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/text/language"

	"cara/internal/ai"
)

const providerCheckTimeout = 30 * time.Second

// CheckProvider verifies that key still authenticates against svc. It makes
// a single attempt with a 30-second timeout.
func CheckProvider(ctx context.Context, svc ai.Service, key string) Result {
	info := svc.ProviderInfo()
	name := info.DisplayName + " key"
	if strings.TrimSpace(key) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, providerCheckTimeout)
	defer cancel()

	if err := svc.ValidateAPIKey(checkCtx, key); err != nil {
		return Result{Name: name, Detail: summarizeProviderError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("API reachable (%d-char key)", len(key))}
}

// CheckCredentialStore loads the store and reports how many keys it holds.
// The loaded state is returned for follow-up checks.
func CheckCredentialStore(ctx context.Context, store ai.CredentialStore) (Result, ai.CredentialState) {
	const name = "Credential store"
	state, err := store.Load(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("load failed (%v)", err)}, state
	}
	keys := 0
	for _, cred := range state.Providers {
		if cred.APIKey != "" {
			keys++
		}
	}
	detail := fmt.Sprintf("%d provider key(s) stored", keys)
	if state.Current != "" {
		detail += fmt.Sprintf(", current provider %s", state.Current)
	}
	return Result{Name: name, Passed: true, Detail: detail}, state
}

// CheckEncryption passes when keys are encrypted at rest.
func CheckEncryption(secret string) Result {
	const name = "Key encryption"
	if strings.TrimSpace(secret) == "" {
		return Result{Name: name, Detail: "no secret configured; keys are stored in plaintext"}
	}
	return Result{Name: name, Passed: true, Detail: "AES-256-GCM"}
}

// CheckPromptLanguage verifies the configured BCP 47 tag.
func CheckPromptLanguage(tag string) Result {
	const name = "Prompt language"
	parsed, err := language.Parse(tag)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%q (error: %v)", tag, err)}
	}
	return Result{Name: name, Passed: true, Detail: parsed.String()}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeProviderError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ai.ErrTimeout) {
		return "check timed out (provider API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (provider API unreachable)"
	}
	var backendErr *ai.BackendError
	if errors.As(err, &backendErr) {
		switch backendErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "auth failed (invalid api key)"
		case http.StatusTooManyRequests:
			return "rate limited; key accepted but quota exhausted"
		}
	}
	return err.Error()
}
