package agent

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds the inference agent settings, loaded from YAML.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// Provider selects the LLM backend: ollama, openai or anthropic.
	Provider string `yaml:"provider"`

	// Model is the model name passed to the provider.
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default endpoint. Useful for a
	// remote Ollama host or an OpenAI-compatible proxy.
	BaseURL string `yaml:"base_url"`

	// MaxSteps caps the reasoning loop per request.
	MaxSteps int `yaml:"max_steps"`

	// Temperature is passed through to the LLM.
	Temperature float32 `yaml:"temperature"`

	// ShellTimeout bounds run_shell_command executions.
	ShellTimeout time.Duration `yaml:"shell_timeout"`

	// DisabledTools lists tool names the agent must not register.
	DisabledTools []string `yaml:"disabled_tools"`
}

// DefaultConfig returns the agent defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8000",
		Provider:     "ollama",
		Model:        "llama3.1:8b",
		MaxSteps:     5,
		Temperature:  0.7,
		ShellTimeout: 30 * time.Second,
	}
}

// LoadConfig reads a YAML config file, filling unset fields with defaults.
// A missing file is not an error; the defaults are returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading agent config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing agent config %s: %w", path, err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8000"
	}
	if cfg.Provider == "" {
		cfg.Provider = "ollama"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1:8b"
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 5
	}
	if cfg.ShellTimeout <= 0 {
		cfg.ShellTimeout = 30 * time.Second
	}
	return cfg, nil
}
