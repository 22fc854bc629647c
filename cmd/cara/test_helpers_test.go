package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cara/internal/testsupport"
)

type cliTestEnv struct {
	configPath string
	dataDir    string
	server     *testsupport.ChatServer
}

func setupCLITestEnv(t *testing.T, replies ...testsupport.ChatReply) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("CARA_CREDENTIALS_SECRET", "cli-test-secret")

	server := testsupport.NewChatServer(t, replies...)
	dataDir := filepath.Join(base, "data")
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[ai]
current_provider = "deepseek"
timeout_seconds = 5
spacing_ms = 0
retry_attempts = 3
retry_base_delay_ms = 1
retry_max_delay_ms = 4

[ai.providers.deepseek]
base_url = %q

[credentials]
backend = "file"

[logging]
level = "error"
`, dataDir, filepath.Join(base, "logs"), server.URL)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{configPath: configPath, dataDir: dataDir, server: server}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

const sampleReport = `basicData:
  reportNumber: "R-2024-118"
  orgName: "Example Stamping Co."
  closingMeetingDate: "2024-10-31"
items:
  - id: "nc-1"
    ncNumber: "NC-01"
    identifier: "NC-2024-118-01"
    classification: Minor
    standardClause: "8.5.1.1"
    requirement: "Control plan"
    statement: "Control plan not updated after the press line change"
    evidence: "CP rev B still lists the old die"
    process: "Stamping"
`

func writeReport(t *testing.T) string {
	t.Helper()
	return testsupport.WriteFile(t, filepath.Join(t.TempDir(), "report.yaml"), sampleReport)
}
