package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cara/internal/ai"
	"cara/internal/governor"
	"cara/internal/prompt"
	"cara/internal/services/openaicompat"
)

// Failure is a generation error ready for display.
type Failure struct {
	Provider      ai.ProviderID
	DisplayName   string
	Section       prompt.Section
	CorrelationID string
	Cause         string
	Err           error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.UserMessage(), f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// UserMessage is one line naming the provider and a short cause.
func (f *Failure) UserMessage() string {
	name := f.DisplayName
	if name == "" {
		name = string(f.Provider)
	}
	return fmt.Sprintf("%s: %s", name, f.Cause)
}

// Configuration reports whether the failure needs user action rather than a
// retry.
func (f *Failure) Configuration() bool {
	return errors.Is(f.Err, ai.ErrProviderNotConfigured) ||
		errors.Is(f.Err, ai.ErrUnknownProvider) ||
		errors.Is(f.Err, ai.ErrInvalidAPIKey)
}

func describeCause(err error, timeout time.Duration) string {
	var (
		exhausted  *governor.ExhaustedError
		backendErr *ai.BackendError
		empty      *openaicompat.EmptyContentError
	)
	switch {
	case errors.Is(err, ai.ErrProviderNotConfigured):
		return "please configure an API key"
	case errors.Is(err, ai.ErrUnknownProvider):
		return "unknown provider"
	case errors.Is(err, ai.ErrInvalidAPIKey):
		return "invalid credentials"
	case errors.Is(err, ai.ErrRateLimited) && errors.As(err, &exhausted):
		return fmt.Sprintf("rate limited, retried %d×, still failing", exhausted.Attempts)
	case errors.Is(err, ai.ErrRateLimited):
		return "rate limited"
	case errors.Is(err, ai.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("network timeout after %s", timeout)
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.As(err, &empty):
		return "empty response from model"
	case errors.As(err, &backendErr) && (backendErr.StatusCode == http.StatusUnauthorized || backendErr.StatusCode == http.StatusForbidden):
		return "invalid credentials"
	case errors.As(err, &backendErr) && backendErr.StatusCode >= http.StatusInternalServerError:
		return fmt.Sprintf("service unavailable (HTTP %d)", backendErr.StatusCode)
	case errors.As(err, &backendErr) && backendErr.StatusCode > 0:
		return fmt.Sprintf("request rejected (HTTP %d)", backendErr.StatusCode)
	case errors.As(err, &backendErr):
		return "network error"
	default:
		return "generation failed, please retry"
	}
}
