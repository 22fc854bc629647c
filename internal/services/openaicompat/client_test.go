package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cara/internal/ai"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(Config{Provider: ai.ProviderDeepSeek, BaseURL: server.URL + "/"})
	return NewProvider(ai.ProviderInfo{
		Name:            ai.ProviderDeepSeek,
		DisplayName:     "DeepSeek",
		DefaultModel:    "demo-model",
		AvailableModels: []string{"demo-model"},
	}, Defaults{}, client)
}

func writeCompletion(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestGenerateCompletionSendsMessagesInOrder(t *testing.T) {
	var body chatCompletionRequest
	var auth string
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeCompletion(t, w, map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "  generated  "}}},
		})
	})
	provider.SetAPIKey("sk-test")

	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: "be terse"},
		{Role: ai.RoleUser, Content: "first"},
		{Role: ai.RoleAssistant, Content: "second"},
		{Role: ai.RoleUser, Content: "third"},
	}
	text, err := provider.GenerateCompletion(context.Background(), messages, ai.CompletionOptions{})
	if err != nil {
		t.Fatalf("GenerateCompletion returned error: %v", err)
	}
	if text != "generated" {
		t.Fatalf("unexpected text %q", text)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	if body.Model != "demo-model" || body.MaxTokens != DefaultMaxTokens || body.Stream {
		t.Fatalf("unexpected defaults: %+v", body)
	}
	if body.Temperature == nil || *body.Temperature != 0.3 {
		t.Fatalf("expected default temperature 0.3, got %v", body.Temperature)
	}
	if body.TopP != nil {
		t.Fatalf("expected top_p to be omitted, got %v", *body.TopP)
	}
	if len(body.Messages) != 4 || body.Messages[0].Role != "system" || body.Messages[3].Content != "third" {
		t.Fatalf("messages not sent in order: %+v", body.Messages)
	}
}

func TestGenerateCompletionHonoursOptions(t *testing.T) {
	var body chatCompletionRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeCompletion(t, w, map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": "ok"}}}})
	})
	provider.SetAPIKey("k")

	_, err := provider.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{
		Model:       "other",
		Temperature: ai.Float(0),
		TopP:        ai.Float(0.5),
		MaxTokens:   77,
	})
	if err != nil {
		t.Fatalf("GenerateCompletion returned error: %v", err)
	}
	if body.Model != "other" || body.MaxTokens != 77 {
		t.Fatalf("options not applied: %+v", body)
	}
	if body.Temperature == nil || *body.Temperature != 0 {
		t.Fatalf("explicit zero temperature must be kept, got %v", body.Temperature)
	}
	if body.TopP == nil || *body.TopP != 0.5 {
		t.Fatalf("expected top_p 0.5, got %v", body.TopP)
	}
}

func TestGenerateCompletionFallsBackToDeltaAndText(t *testing.T) {
	payloads := []map[string]any{
		{"choices": []any{map[string]any{"delta": map[string]any{"content": "from delta"}}}},
		{"choices": []any{map[string]any{"text": "from text"}}},
	}
	want := []string{"from delta", "from text"}
	call := 0
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(t, w, payloads[call])
		call++
	})
	provider.SetAPIKey("k")

	for i, expected := range want {
		text, err := provider.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{})
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if text != expected {
			t.Fatalf("call %d: expected %q, got %q", i, expected, text)
		}
	}
}

func TestGenerateCompletionEmptyContentIsError(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(t, w, map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": ""}, "finish_reason": "length"}},
		})
	})
	provider.SetAPIKey("k")

	text, err := provider.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{})
	if err == nil {
		t.Fatalf("expected error, got text %q", text)
	}
	var empty *EmptyContentError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyContentError, got %T: %v", err, err)
	}
	if empty.FinishReason != "length" {
		t.Fatalf("unexpected finish reason %q", empty.FinishReason)
	}
	if !strings.Contains(err.Error(), "deepseek") {
		t.Fatalf("expected error to name the backend, got %v", err)
	}
}

func TestGenerateCompletionRateLimitCarriesRetryAfter(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	})
	provider.SetAPIKey("k")

	_, err := provider.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{})
	if !errors.Is(err, ai.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var backendErr *ai.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %T", err)
	}
	if backendErr.RetryAfterHint() != 3*time.Second {
		t.Fatalf("expected 3s retry hint, got %v", backendErr.RetryAfterHint())
	}
	if !strings.Contains(backendErr.Body, "slow down") {
		t.Fatalf("expected body in error, got %q", backendErr.Body)
	}
}

func TestGenerateCompletionTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Config{Provider: ai.ProviderSiliconFlow, BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	provider := NewProvider(ai.ProviderInfo{Name: ai.ProviderSiliconFlow, DefaultModel: "m"}, Defaults{}, client)
	provider.SetAPIKey("k")

	_, err := provider.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{})
	if !errors.Is(err, ai.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestGenerateCompletionWithoutKey(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a key")
	})
	_, err := provider.GenerateCompletion(context.Background(), nil, ai.CompletionOptions{})
	if !errors.Is(err, ai.ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestValidateAPIKeyUsesCandidateKey(t *testing.T) {
	var body chatCompletionRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer candidate" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeCompletion(t, w, map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": "Hello"}}}})
	})
	provider.SetAPIKey("stored")

	if err := provider.ValidateAPIKey(context.Background(), "candidate"); err != nil {
		t.Fatalf("ValidateAPIKey returned error: %v", err)
	}
	if body.MaxTokens != 10 {
		t.Fatalf("expected a 10-token probe, got %d", body.MaxTokens)
	}
	if err := provider.ValidateAPIKey(context.Background(), "wrong"); err == nil {
		t.Fatal("expected validation failure for rejected key")
	}
	if key, _ := provider.APIKey(); key != "stored" {
		t.Fatalf("validation must not replace the stored key, got %q", key)
	}
}

func TestProviderInfoReportsBaseURLAndCopies(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})
	info := provider.ProviderInfo()
	if !strings.HasPrefix(info.BaseURL, "http://127.0.0.1") || strings.HasSuffix(info.BaseURL, "/") {
		t.Fatalf("unexpected base url %q", info.BaseURL)
	}
	info.AvailableModels[0] = "mutated"
	if provider.AvailableModels()[0] != "demo-model" {
		t.Fatal("expected AvailableModels to return a copy")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := ParseRetryAfter("7"); !ok || d != 7*time.Second {
		t.Fatalf("expected 7s, got %v %v", d, ok)
	}
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	if d, ok := ParseRetryAfter(future); !ok || d <= 0 || d > 90*time.Second {
		t.Fatalf("expected positive delay from http date, got %v %v", d, ok)
	}
	for _, bad := range []string{"", "-1", "soon"} {
		if _, ok := ParseRetryAfter(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestSummarizePayload(t *testing.T) {
	if got := SummarizePayload("  a\n\tb  "); got != "a b" {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := SummarizePayload(""); got != "<empty>" {
		t.Fatalf("unexpected empty summary %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := SummarizePayload(long); len(got) != 163 {
		t.Fatalf("expected truncation to 160 runes plus ellipsis, got %d", len(got))
	}
}
