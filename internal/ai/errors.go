package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnknownProvider is returned for ids outside the supported set.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrProviderNotConfigured is returned when a provider has no validated key.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrInvalidAPIKey is returned when key validation fails.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrRateLimited matches backend errors with a 429 status.
	ErrRateLimited = errors.New("rate limited")
	// ErrTimeout matches backend errors caused by a network deadline.
	ErrTimeout = errors.New("request timed out")
)

const maxErrorBody = 512

// BackendError reports a failed exchange with a provider backend.
type BackendError struct {
	Provider   ProviderID
	Op         string
	StatusCode int
	Body       string
	Timeout    bool
	RetryAfter time.Duration
	Err        error
}

// NewStatusError builds a BackendError for a non-2xx response, truncating the
// body.
func NewStatusError(provider ProviderID, op string, status int, body string, retryAfter time.Duration) *BackendError {
	return &BackendError{
		Provider:   provider,
		Op:         op,
		StatusCode: status,
		Body:       TruncateBody(body),
		RetryAfter: retryAfter,
	}
}

func (e *BackendError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Provider))
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	switch {
	case e.Timeout:
		b.WriteString(": timeout")
	case e.StatusCode > 0:
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		b.WriteString(": ")
		b.WriteString(body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is lets callers branch with errors.Is on the rate-limit and timeout
// sentinels.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrTimeout:
		return e.Timeout
	}
	return false
}

// RetryAfterHint exposes the server-provided backoff, if any.
func (e *BackendError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// TruncateBody trims and shortens a raw response body for diagnostics.
func TruncateBody(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) > maxErrorBody {
		return string(runes[:maxErrorBody]) + "..."
	}
	return body
}

// TransportError wraps a failure that happened before a response arrived.
// Deadline expiry and network timeouts are flagged so they match ErrTimeout.
func TransportError(provider ProviderID, op string, err error) *BackendError {
	out := &BackendError{Provider: provider, Op: op, Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		out.Timeout = true
		return out
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		out.Timeout = true
	}
	return out
}
