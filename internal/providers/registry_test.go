package providers_test

import (
	"context"
	"testing"
	"time"

	"cara/internal/ai"
	"cara/internal/config"
	"cara/internal/providers"
	"cara/internal/testsupport"
)

func TestServicesCoverEveryProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seen := map[ai.ProviderID]bool{}
	for _, svc := range providers.Services(cfg) {
		seen[svc.ID()] = true
		if len(svc.AvailableModels()) == 0 {
			t.Fatalf("%s has no models", svc.ID())
		}
		if key, ok := svc.APIKey(); ok || key != "" {
			t.Fatalf("%s: expected no key before SetAPIKey, got %q %v", svc.ID(), key, ok)
		}
		want := "key-for-" + string(svc.ID())
		svc.SetAPIKey(want)
		if key, ok := svc.APIKey(); !ok || key != want {
			t.Fatalf("%s: APIKey() = %q %v, want %q", svc.ID(), key, ok, want)
		}
		svc.SetAPIKey("")
		if key, ok := svc.APIKey(); ok || key != "" {
			t.Fatalf("%s: expected no key after clearing, got %q %v", svc.ID(), key, ok)
		}
	}
	for _, id := range ai.AllProviders() {
		if !seen[id] {
			t.Fatalf("missing adapter for %s", id)
		}
	}
}

func TestGovernorSpacingFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.AI.SpacingMS = 300
	gov := providers.Governor(cfg)
	if got := gov.Spacing("deepseek"); got != 300*time.Millisecond {
		t.Fatalf("unexpected deepseek spacing %v", got)
	}
	if got := gov.Spacing("siliconflow"); got != 500*time.Millisecond {
		t.Fatalf("unexpected siliconflow spacing %v", got)
	}
}

func TestManagerEndToEnd(t *testing.T) {
	server := testsupport.NewChatServer(t,
		testsupport.ChatReply{Content: "pong"},
		testsupport.ChatReply{Content: "containment plan"},
	)
	cfg := testsupport.NewConfig(t,
		testsupport.WithProviderBaseURL("deepseek", server.URL),
		testsupport.WithCurrentProvider("deepseek"),
	)
	store := testsupport.MustOpenCredentialStore(t, cfg)

	manager, err := providers.NewManager(cfg, providers.WithCredentialStore(store))
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if manager.CurrentProvider() != ai.ProviderDeepSeek {
		t.Fatalf("expected configured current provider, got %s", manager.CurrentProvider())
	}
	if err := manager.SetProviderAPIKey(context.Background(), ai.ProviderDeepSeek, "sk-live"); err != nil {
		t.Fatalf("SetProviderAPIKey returned error: %v", err)
	}

	text, err := manager.GenerateCompletion(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.CompletionOptions{})
	if err != nil || text != "containment plan" {
		t.Fatalf("unexpected completion %q %v", text, err)
	}
	reqs := server.Requests()
	if len(reqs) != 2 || reqs[1].Authorization != "Bearer sk-live" {
		t.Fatalf("unexpected requests %+v", reqs)
	}

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cred := state.Providers[ai.ProviderDeepSeek]; cred.APIKey != "sk-live" || !cred.Enabled {
		t.Fatalf("expected stored credential, got %+v", cred)
	}

	fresh, err := providers.NewManager(cfg, providers.WithCredentialStore(store))
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if err := fresh.Sync(context.Background()); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if !fresh.IsProviderConfigured(ai.ProviderDeepSeek) {
		t.Fatal("expected a new manager to pick up the stored key")
	}
}

func TestUndecryptableKeySurvivesUnrelatedPersist(t *testing.T) {
	for _, backend := range []string{config.CredentialBackendSQLite, config.CredentialBackendFile} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			server := testsupport.NewChatServer(t)
			cfg := testsupport.NewConfig(t,
				testsupport.WithProviderBaseURL("deepseek", server.URL),
				testsupport.WithCredentialBackend(backend, "first"),
			)
			seed := testsupport.MustOpenCredentialStore(t, cfg)
			if err := seed.Save(ctx, ai.CredentialState{Providers: map[ai.ProviderID]ai.Credential{
				ai.ProviderClaude: {APIKey: "sk-ant-precious", Enabled: true},
			}}); err != nil {
				t.Fatalf("seed Save returned error: %v", err)
			}

			cfg.Credentials.Secret = "second"
			store := testsupport.MustOpenCredentialStore(t, cfg)
			manager, err := providers.NewManager(cfg, providers.WithCredentialStore(store))
			if err != nil {
				t.Fatalf("NewManager returned error: %v", err)
			}
			if err := manager.Sync(ctx); err != nil {
				t.Fatalf("Sync returned error: %v", err)
			}
			if manager.IsProviderConfigured(ai.ProviderClaude) {
				t.Fatal("claude must read as unconfigured under the wrong secret")
			}
			if err := manager.SetProviderAPIKey(ctx, ai.ProviderDeepSeek, "sk-ds"); err != nil {
				t.Fatalf("SetProviderAPIKey returned error: %v", err)
			}
			if err := manager.SetProviderModel(ai.ProviderClaude, "claude-3-haiku-20240307"); err != nil {
				t.Fatalf("SetProviderModel returned error: %v", err)
			}
			if err := manager.Persist(ctx); err != nil {
				t.Fatalf("Persist returned error: %v", err)
			}

			cfg.Credentials.Secret = "first"
			state, err := testsupport.MustOpenCredentialStore(t, cfg).Load(ctx)
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			claude := state.Providers[ai.ProviderClaude]
			if claude.APIKey != "sk-ant-precious" || !claude.Enabled {
				t.Fatalf("claude key lost after persisting under the wrong secret: %+v", claude)
			}
			if claude.Model != "claude-3-haiku-20240307" {
				t.Fatalf("expected the model change to be kept, got %q", claude.Model)
			}

			if err := manager.ClearProviderAPIKey(ctx, ai.ProviderClaude); err != nil {
				t.Fatalf("ClearProviderAPIKey returned error: %v", err)
			}
			cfg.Credentials.Secret = "first"
			state, err = testsupport.MustOpenCredentialStore(t, cfg).Load(ctx)
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			if cred := state.Providers[ai.ProviderClaude]; cred.APIKey != "" || cred.Enabled {
				t.Fatalf("expected an explicit clear to remove the key, got %+v", cred)
			}
		})
	}
}
