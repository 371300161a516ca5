package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider != "ollama" || cfg.Model != "llama3.1:8b" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxSteps != 5 {
		t.Errorf("max steps = %d", cfg.MaxSteps)
	}
	if cfg.ShellTimeout != 30*time.Second {
		t.Errorf("shell timeout = %v", cfg.ShellTimeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `
listen_addr: ":9000"
provider: openai
model: gpt-4o-mini
max_steps: 8
disabled_tools:
  - run_shell_command
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.Provider != "openai" || cfg.Model != "gpt-4o-mini" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxSteps != 8 {
		t.Errorf("max steps = %d", cfg.MaxSteps)
	}
	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "run_shell_command" {
		t.Errorf("disabled tools = %v", cfg.DisabledTools)
	}
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig accepted malformed YAML")
	}
}
