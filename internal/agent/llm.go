package agent

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// Message is one turn in the agent's conversation history.
type Message struct {
	Role    string
	Content string
}

// Completer produces one LLM response for a conversation history.
type Completer interface {
	Complete(ctx context.Context, history []Message) (string, error)
}

// anyLLMCompleter implements Completer on top of any-llm-go, which gives
// us Ollama, OpenAI and Anthropic behind one interface.
type anyLLMCompleter struct {
	backend     anyllmlib.Provider
	model       string
	temperature float32
}

// NewCompleter builds a Completer from the agent config. Without a base
// URL the ollama provider connects to http://localhost:11434; the hosted
// providers read their usual API key environment variables.
func NewCompleter(cfg Config) (Completer, error) {
	var opts []anyllmlib.Option
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}

	var (
		backend anyllmlib.Provider
		err     error
	)
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		backend, err = ollama.New(opts...)
	case "openai":
		backend, err = anyllmoai.New(opts...)
	case "anthropic":
		backend, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: ollama, openai, anthropic", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s backend: %w", cfg.Provider, err)
	}

	return &anyLLMCompleter{
		backend:     backend,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (c *anyLLMCompleter) Complete(ctx context.Context, history []Message) (string, error) {
	messages := make([]anyllmlib.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    c.model,
		Messages: messages,
	}
	if c.temperature != 0 {
		t := float64(c.temperature)
		params.Temperature = &t
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in completion response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
