package siliconflow

import (
	"context"
	"testing"

	"cara/internal/ai"
	"cara/internal/testsupport"
)

func TestGenerateCompletionDefaults(t *testing.T) {
	server := testsupport.NewChatServer(t, testsupport.ChatReply{Content: "围堵措施"})
	svc := New(Config{BaseURL: server.URL})
	svc.SetAPIKey("sk-sf")

	text, err := svc.GenerateCompletion(context.Background(), []ai.Message{
		{Role: ai.RoleSystem, Content: "auditor"},
		{Role: ai.RoleUser, Content: "containment"},
	}, ai.CompletionOptions{})
	if err != nil {
		t.Fatalf("GenerateCompletion returned error: %v", err)
	}
	if text != "围堵措施" {
		t.Fatalf("unexpected text %q", text)
	}
	body := server.Requests()[0].Body
	if body["model"] != defaultModel || body["top_p"] != 0.9 || body["temperature"] != 0.3 {
		t.Fatalf("unexpected defaults %v", body)
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system message to stay inline, got %v", body["messages"])
	}
}

func TestModelOverrideFromConfig(t *testing.T) {
	svc := New(Config{Model: "01-ai/Yi-1.5-34B-Chat"})
	if got := svc.ProviderInfo().DefaultModel; got != "01-ai/Yi-1.5-34B-Chat" {
		t.Fatalf("expected configured default model, got %q", got)
	}
	if len(svc.AvailableModels()) != 4 {
		t.Fatalf("unexpected models %v", svc.AvailableModels())
	}
}
