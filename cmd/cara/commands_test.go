package main

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cara/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Current provider: deepseek")
	requireContains(t, out, "Encrypted at rest: yes")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
}

func TestProvidersKeyLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "providers", "set-key", "deepseek", "sk-test-123")
	if err != nil {
		t.Fatalf("set-key: %v", err)
	}
	requireContains(t, out, "validated and stored")
	if reqs := env.server.Requests(); len(reqs) != 1 || reqs[0].Authorization != "Bearer sk-test-123" {
		t.Fatalf("expected one validation call, got %+v", reqs)
	}

	out, _, err = runCLI(t, env.configPath, "providers", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "set (11 chars)")
	requireContains(t, out, "DeepSeek")
	if strings.Contains(out, "sk-test-123") {
		t.Fatalf("list leaked the key:\n%s", out)
	}

	out, _, err = runCLI(t, env.configPath, "providers", "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.Contains(out, "sk-test") {
		t.Fatalf("export leaked the key:\n%s", out)
	}
	var exported map[string]map[string]any
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if exported["deepseek"]["enabled"] != true {
		t.Fatalf("expected deepseek enabled in export: %v", exported["deepseek"])
	}

	data, err := os.ReadFile(filepath.Join(env.dataDir, "credentials.json"))
	if err != nil {
		t.Fatalf("read credentials file: %v", err)
	}
	if strings.Contains(string(data), "sk-test-123") {
		t.Fatal("credential stored in plaintext despite a secret")
	}

	out, _, err = runCLI(t, env.configPath, "providers", "clear-key", "deepseek")
	if err != nil {
		t.Fatalf("clear-key: %v", err)
	}
	requireContains(t, out, "removed")
	out, _, err = runCLI(t, env.configPath, "providers", "list", "--json")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	if strings.Contains(out, `"enabled": true`) {
		t.Fatalf("expected every provider disabled:\n%s", out)
	}
}

func TestProvidersSetKeyRejected(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.ChatReply{Status: http.StatusUnauthorized})
	_, _, err := runCLI(t, env.configPath, "providers", "set-key", "deepseek", "sk-bad")
	if err == nil || !strings.Contains(err.Error(), "DeepSeek rejected the key") {
		t.Fatalf("expected rejection, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.dataDir, "credentials.json")); !os.IsNotExist(err) {
		t.Fatalf("rejected key must not be stored (stat err %v)", err)
	}
}

func TestProvidersUseAndModels(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "providers", "use", "glm")
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	requireContains(t, out, "Current provider: glm")
	requireContains(t, out, "no API key yet")

	out, _, err = runCLI(t, env.configPath, "providers", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var statuses []struct {
		Info struct {
			Name string `json:"name"`
		} `json:"info"`
		Current bool `json:"current"`
	}
	if err := json.Unmarshal([]byte(out), &statuses); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	for _, st := range statuses {
		if st.Current != (st.Info.Name == "glm") {
			t.Fatalf("unexpected current flag for %s", st.Info.Name)
		}
	}

	if _, _, err := runCLI(t, env.configPath, "providers", "set-model", "deepseek", "deepseek-reasoner"); err != nil {
		t.Fatalf("set-model: %v", err)
	}
	out, _, err = runCLI(t, env.configPath, "providers", "models", "deepseek")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	requireContains(t, out, "* deepseek-reasoner")
	requireContains(t, out, "  deepseek-chat")

	if _, _, err := runCLI(t, env.configPath, "providers", "use", "openai"); err == nil || !strings.Contains(err.Error(), "choose one of") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestProvidersImport(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteFile(t, filepath.Join(t.TempDir(), "providers.json"),
		`{"deepseek":{"type":"deepseek","enabled":true,"model":"deepseek-coder"}}`)

	out, _, err := runCLI(t, env.configPath, "providers", "import", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	requireContains(t, out, "Imported settings for 1 providers")

	out, _, err = runCLI(t, env.configPath, "providers", "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var exported map[string]map[string]any
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if exported["deepseek"]["model"] != "deepseek-coder" || exported["deepseek"]["enabled"] != false {
		t.Fatalf("import without key must keep provider disabled: %v", exported["deepseek"])
	}
}

func TestDeadlinesCommand(t *testing.T) {
	out, _, err := runCLI(t, "", "deadlines", "--closing-date", "2024-10-31")
	if err != nil {
		t.Fatalf("deadlines: %v", err)
	}
	for _, want := range []string{"2024-11-02", "2024-11-16", "2024-11-26", "2024-12-01", "S1_CONTAINMENT"} {
		requireContains(t, out, want)
	}
	if _, _, err := runCLI(t, "", "deadlines", "--closing-date", "31.10.24"); err == nil {
		t.Fatal("expected invalid date error")
	}
	if _, _, err := runCLI(t, "", "deadlines"); err == nil {
		t.Fatal("expected missing flag error")
	}
}

func TestPromptCommandUsesReportClosingDate(t *testing.T) {
	env := setupCLITestEnv(t)
	report := writeReport(t)

	out, _, err := runCLI(t, env.configPath, "prompt", "--report", report, "--item", "NC-01", "--section", "S1_CONTAINMENT")
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	requireContains(t, out, "=== system ===")
	requireContains(t, out, "2024-11-02")
	requireContains(t, out, "generate new")
	if len(env.server.Requests()) != 0 {
		t.Fatal("prompt must not call a provider")
	}

	if _, _, err := runCLI(t, env.configPath, "prompt", "--report", report, "--item", "NC-99", "--section", "containment"); err == nil {
		t.Fatal("expected missing item error")
	}
}

func TestGenerateCommand(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.ChatReply{Content: "pong"},
		testsupport.ChatReply{Content: "Quarantine all suspect parts by 2024-11-02."},
	)
	report := writeReport(t)

	if _, _, err := runCLI(t, env.configPath, "providers", "set-key", "deepseek", "sk-live"); err != nil {
		t.Fatalf("set-key: %v", err)
	}
	outDir := t.TempDir()
	_, stderr, err := runCLI(t, env.configPath, "generate", "--report", report, "--item", "nc-1", "--section", "containment", "--out", outDir)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	requireContains(t, stderr, "Wrote ")

	target := filepath.Join(outDir, "nc-2024-118-01-containment-deepseek.txt")
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read draft: %v", err)
	}
	requireContains(t, string(data), "Quarantine all suspect parts")

	reqs := env.server.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected validation and generation calls, got %d", len(reqs))
	}
	messages, _ := reqs[1].Body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", reqs[1].Body["messages"])
	}
}

func TestGenerateWithoutKeyReportsOneLine(t *testing.T) {
	env := setupCLITestEnv(t)
	report := writeReport(t)
	_, _, err := runCLI(t, env.configPath, "generate", "--report", report, "--item", "nc-1", "--section", "containment")
	if err == nil || err.Error() != "DeepSeek: please configure an API key" {
		t.Fatalf("unexpected error %v", err)
	}
	if len(env.server.Requests()) != 0 {
		t.Fatal("no provider call expected")
	}
}

func TestGenerateRateLimitedMessage(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.ChatReply{Content: "pong"},
		testsupport.ChatReply{Status: http.StatusTooManyRequests},
		testsupport.ChatReply{Status: http.StatusTooManyRequests},
		testsupport.ChatReply{Status: http.StatusTooManyRequests},
	)
	report := writeReport(t)
	if _, _, err := runCLI(t, env.configPath, "providers", "set-key", "deepseek", "sk-live"); err != nil {
		t.Fatalf("set-key: %v", err)
	}
	_, _, err := runCLI(t, env.configPath, "generate", "-r", report, "-i", "nc-1", "-s", "root-cause")
	if err == nil || err.Error() != "DeepSeek: rate limited, retried 3×, still failing" {
		t.Fatalf("unexpected error %v", err)
	}
	if got := len(env.server.Requests()); got != 4 {
		t.Fatalf("expected 1 validation + 3 attempts, got %d", got)
	}
}

func TestDoctorCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Credential store")
	requireContains(t, out, "0 provider key(s) stored")
	requireContains(t, out, "AES-256-GCM")

	if _, _, err := runCLI(t, env.configPath, "providers", "set-key", "deepseek", "sk-live-1"); err != nil {
		t.Fatalf("set-key: %v", err)
	}
	out, _, err = runCLI(t, env.configPath, "doctor", "--live")
	if err != nil {
		t.Fatalf("doctor --live: %v\n%s", err, out)
	}
	requireContains(t, out, "DeepSeek key")
	requireContains(t, out, "API reachable (9-char key)")
	if reqs := env.server.Requests(); len(reqs) != 2 || reqs[1].Authorization != "Bearer sk-live-1" {
		t.Fatalf("expected a validation call per run, got %+v", reqs)
	}
}

func TestLogsCommandFollowsCorrelationID(t *testing.T) {
	env := setupCLITestEnv(t,
		testsupport.ChatReply{Content: "pong"},
		testsupport.ChatReply{Status: http.StatusBadGateway},
	)
	report := writeReport(t)
	if _, _, err := runCLI(t, env.configPath, "providers", "set-key", "deepseek", "sk-live"); err != nil {
		t.Fatalf("set-key: %v", err)
	}
	_, stderr, err := runCLI(t, env.configPath, "generate", "-r", report, "-i", "nc-1", "-s", "containment")
	if err == nil {
		t.Fatal("expected generation failure")
	}
	requireContains(t, stderr, "cara logs --correlation-id ")
	id := strings.TrimSpace(stderr[strings.Index(stderr, "--correlation-id ")+len("--correlation-id "):])
	id = strings.Fields(id)[0]

	out, _, err := runCLI(t, env.configPath, "logs", "--correlation-id", id)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "correlation_id="+id)
	requireContains(t, out, "status=502")
	requireContains(t, out, "section generation failed")
	if strings.Contains(out, "sk-live") {
		t.Fatalf("log output leaked the key:\n%s", out)
	}
}
