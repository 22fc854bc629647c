package deepseek

import (
	"context"
	"testing"

	"cara/internal/ai"
	"cara/internal/testsupport"
)

func TestServiceRoundTripsKey(t *testing.T) {
	svc := New(Config{})
	if _, ok := svc.APIKey(); ok {
		t.Fatal("expected no key before SetAPIKey")
	}
	svc.SetAPIKey("sk-deepseek-123")
	if key, ok := svc.APIKey(); !ok || key != "sk-deepseek-123" {
		t.Fatalf("expected identical key back, got %q %v", key, ok)
	}
	if svc.ID() != ai.ProviderDeepSeek {
		t.Fatalf("unexpected id %q", svc.ID())
	}
}

func TestServiceDefaults(t *testing.T) {
	server := testsupport.NewChatServer(t, testsupport.ChatReply{Content: "整改措施 / corrective action"})
	svc := New(Config{BaseURL: server.URL})
	svc.SetAPIKey("sk")

	text, err := svc.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "draft"}}, ai.CompletionOptions{})
	if err != nil {
		t.Fatalf("GenerateCompletion returned error: %v", err)
	}
	if text != "整改措施 / corrective action" {
		t.Fatalf("unexpected text %q", text)
	}
	reqs := server.Requests()
	if len(reqs) != 1 || reqs[0].Path != "/chat/completions" {
		t.Fatalf("unexpected requests %+v", reqs)
	}
	if reqs[0].Body["model"] != "deepseek-chat" {
		t.Fatalf("expected default model, got %v", reqs[0].Body["model"])
	}
	if _, ok := reqs[0].Body["top_p"]; ok {
		t.Fatalf("deepseek should not send top_p by default: %v", reqs[0].Body)
	}
}

func TestServiceInfo(t *testing.T) {
	info := New(Config{Model: "deepseek-reasoner"}).ProviderInfo()
	if info.BaseURL != defaultBaseURL || info.DefaultModel != "deepseek-reasoner" || !info.RequiresAPIKey {
		t.Fatalf("unexpected info %+v", info)
	}
}
