package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cara/internal/ai"
)

type fakeGemini struct {
	*httptest.Server

	mu       sync.Mutex
	paths    []string
	keys     []string
	bodies   []map[string]any
	status   int
	response string
}

func newFakeGemini(t *testing.T, status int, response string) *fakeGemini {
	t.Helper()
	fake := &fakeGemini{status: status, response: response}
	fake.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		key := r.Header.Get("x-goog-api-key")
		if key == "" {
			key = r.URL.Query().Get("key")
		}
		fake.mu.Lock()
		fake.paths = append(fake.paths, r.URL.Path)
		fake.keys = append(fake.keys, key)
		fake.bodies = append(fake.bodies, body)
		fake.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fake.status)
		_, _ = io.WriteString(w, fake.response)
	}))
	t.Cleanup(fake.Close)
	return fake
}

func (f *fakeGemini) last(t *testing.T) (string, string, map[string]any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.paths) == 0 {
		t.Fatal("expected at least one request")
	}
	n := len(f.paths) - 1
	return f.paths[n], f.keys[n], f.bodies[n]
}

const okResponse = `{"candidates":[{"content":{"role":"model","parts":[{"text":"纠正措施 / corrective action"}]},"finishReason":"STOP"}]}`

func TestGenerateCompletionMapsRoles(t *testing.T) {
	fake := newFakeGemini(t, http.StatusOK, okResponse)
	svc := New(Config{BaseURL: fake.URL})
	svc.SetAPIKey("AIza-test")

	text, err := svc.GenerateCompletion(context.Background(), []ai.Message{
		{Role: ai.RoleSystem, Content: "You are an IATF 16949 auditor."},
		{Role: ai.RoleUser, Content: "first"},
		{Role: ai.RoleAssistant, Content: "reply"},
		{Role: ai.RoleUser, Content: "second"},
	}, ai.CompletionOptions{MaxTokens: 512})
	if err != nil {
		t.Fatalf("GenerateCompletion returned error: %v", err)
	}
	if text != "纠正措施 / corrective action" {
		t.Fatalf("unexpected text %q", text)
	}

	path, key, body := fake.last(t)
	if !strings.HasSuffix(path, "/models/gemini-2.0-flash:generateContent") {
		t.Fatalf("unexpected path %q", path)
	}
	if key != "AIza-test" {
		t.Fatalf("unexpected api key %q", key)
	}
	contents, _ := body["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %v", body["contents"])
	}
	roles := make([]string, 0, len(contents))
	for _, c := range contents {
		m, _ := c.(map[string]any)
		role, _ := m["role"].(string)
		roles = append(roles, role)
	}
	if strings.Join(roles, ",") != "user,model,user" {
		t.Fatalf("unexpected roles %v", roles)
	}
	system, _ := body["systemInstruction"].(map[string]any)
	if system == nil || !strings.Contains(mustJSON(t, system), "IATF 16949 auditor") {
		t.Fatalf("expected system instruction, got %v", body["systemInstruction"])
	}
	generation, _ := body["generationConfig"].(map[string]any)
	if generation["maxOutputTokens"] != float64(512) {
		t.Fatalf("unexpected generation config %v", generation)
	}
}

func TestGenerateCompletionRateLimited(t *testing.T) {
	fake := newFakeGemini(t, http.StatusTooManyRequests,
		`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`)
	svc := New(Config{BaseURL: fake.URL})
	svc.SetAPIKey("AIza-test")

	_, err := svc.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{})
	if !errors.Is(err, ai.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var backendErr *ai.BackendError
	if !errors.As(err, &backendErr) || backendErr.Provider != ai.ProviderGemini {
		t.Fatalf("expected gemini BackendError, got %v", err)
	}
}

func TestGenerateCompletionEmptyCandidates(t *testing.T) {
	fake := newFakeGemini(t, http.StatusOK, `{"candidates":[]}`)
	svc := New(Config{BaseURL: fake.URL})
	svc.SetAPIKey("AIza-test")

	if _, err := svc.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{}); err == nil {
		t.Fatal("expected empty content to be an error")
	}
}

func TestGenerateCompletionWithoutKey(t *testing.T) {
	svc := New(Config{})
	_, err := svc.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{})
	if !errors.Is(err, ai.ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestValidateAPIKeyUsesCandidate(t *testing.T) {
	fake := newFakeGemini(t, http.StatusOK, okResponse)
	svc := New(Config{BaseURL: fake.URL})
	svc.SetAPIKey("AIza-old")

	if err := svc.ValidateAPIKey(context.Background(), "AIza-new"); err != nil {
		t.Fatalf("ValidateAPIKey returned error: %v", err)
	}
	_, key, body := fake.last(t)
	if key != "AIza-new" {
		t.Fatalf("expected candidate key, got %q", key)
	}
	generation, _ := body["generationConfig"].(map[string]any)
	if generation["maxOutputTokens"] != float64(10) {
		t.Fatalf("expected 10-token probe, got %v", generation)
	}
	if current, _ := svc.APIKey(); current != "AIza-old" {
		t.Fatalf("validation must not replace the stored key, got %q", current)
	}
}

func TestProviderInfo(t *testing.T) {
	info := New(Config{}).ProviderInfo()
	if info.DefaultModel != "gemini-2.0-flash" || len(info.AvailableModels) != 4 || !info.RequiresAPIKey {
		t.Fatalf("unexpected info %+v", info)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}
