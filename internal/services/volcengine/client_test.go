package volcengine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"cara/internal/ai"
	"cara/internal/testsupport"
)

func TestAuthorization(t *testing.T) {
	cases := map[string]string{
		"plain-token":      "Bearer plain-token",
		"Bearer already":   "Bearer already",
		"ak-123;sk-456":    "ak-123;sk-456",
		"ACCESS:SECRET":    "Bearer SECRET",
		"  spaced-token  ": "Bearer spaced-token",
		"a:b:c":            "Bearer a:b:c",
	}
	for key, want := range cases {
		if got := Authorization(key); got != want {
			t.Fatalf("Authorization(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestSetAPIKeyKeepsOriginalValue(t *testing.T) {
	svc := New(Config{})
	svc.SetAPIKey("ACCESS:SECRET")
	if key, _ := svc.APIKey(); key != "ACCESS:SECRET" {
		t.Fatalf("expected key round trip, got %q", key)
	}
}

func TestGenerateCompletionSplitsAccessSecretKey(t *testing.T) {
	server := testsupport.NewChatServer(t, testsupport.ChatReply{Content: "ok"})
	svc := New(Config{BaseURL: server.URL, Model: "ep-20240101-abc"})
	svc.SetAPIKey("ACCESS:SECRET")

	if _, err := svc.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{}); err != nil {
		t.Fatalf("GenerateCompletion returned error: %v", err)
	}
	req := server.Requests()[0]
	if req.Authorization != "Bearer SECRET" {
		t.Fatalf("unexpected authorization %q", req.Authorization)
	}
	if req.Body["model"] != "ep-20240101-abc" {
		t.Fatalf("expected endpoint id as model, got %v", req.Body["model"])
	}
}

func TestGenerateCompletionNotFoundHint(t *testing.T) {
	server := testsupport.NewChatServer(t, testsupport.ChatReply{Status: http.StatusNotFound})
	svc := New(Config{BaseURL: server.URL})
	svc.SetAPIKey("token")

	_, err := svc.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{})
	var backendErr *ai.BackendError
	if !errors.As(err, &backendErr) || backendErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected wrapped 404 BackendError, got %v", err)
	}
	if !strings.Contains(err.Error(), `"doubao-pro-32k"`) || !strings.Contains(err.Error(), "region") {
		t.Fatalf("expected endpoint hint, got %v", err)
	}
}

func TestGenerateCompletionOtherErrorsUnchanged(t *testing.T) {
	server := testsupport.NewChatServer(t, testsupport.ChatReply{Status: http.StatusTooManyRequests})
	svc := New(Config{BaseURL: server.URL})
	svc.SetAPIKey("token")

	_, err := svc.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{})
	if !errors.Is(err, ai.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if strings.Contains(err.Error(), "endpoint not found") {
		t.Fatalf("hint must only apply to 404, got %v", err)
	}
}
