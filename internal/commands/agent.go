package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgevoice/edgevoice/internal/agent"
	"github.com/edgevoice/edgevoice/internal/console"
	"github.com/edgevoice/edgevoice/internal/observe"
)

var agentFlags struct {
	configPath string
	listenAddr string
	provider   string
	model      string
	baseURL    string
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the reasoning agent server",
	Long: `Start the HTTP server that receives transcripts and answers them
with an LLM-backed reasoning agent.

The agent thinks in steps, calling built-in tools (shell commands,
smart home controls, weather, timers) until it reaches an answer.

Examples:
  edgevoice agent
  edgevoice agent --provider openai --model gpt-4o-mini
  edgevoice agent --config agent.yaml --listen :9000`,
	RunE: runAgent,
}

func init() {
	f := agentCmd.Flags()
	f.StringVar(&agentFlags.configPath, "config", "", "agent config file (YAML)")
	f.StringVar(&agentFlags.listenAddr, "listen", "", "listen address (overrides config)")
	f.StringVar(&agentFlags.provider, "provider", "", "LLM provider: ollama, openai or anthropic")
	f.StringVar(&agentFlags.model, "model", "", "model name (overrides config)")
	f.StringVar(&agentFlags.baseURL, "base-url", "", "provider base URL (overrides config)")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := agent.LoadConfig(agentFlags.configPath)
	if err != nil {
		return err
	}
	if agentFlags.listenAddr != "" {
		cfg.ListenAddr = agentFlags.listenAddr
	}
	if agentFlags.provider != "" {
		cfg.Provider = agentFlags.provider
	}
	if agentFlags.model != "" {
		cfg.Model = agentFlags.model
	}
	if agentFlags.baseURL != "" {
		cfg.BaseURL = agentFlags.baseURL
	}

	shutdownMetrics, err := observe.InitProvider(cmd.Context(), "edgevoice-agent", version)
	if err != nil {
		log.Warn().Err(err).Msg("metrics provider unavailable, continuing without")
	}

	completer, err := agent.NewCompleter(cfg)
	if err != nil {
		return fmt.Errorf("initializing LLM provider: %w", err)
	}
	tools := agent.NewRegistry(cfg, log)
	ag := agent.New(completer, tools, cfg.MaxSteps, log)
	srv := agent.NewServer(cfg, ag, tools, log)

	styles := console.Default
	body := styles.KV("listen", cfg.ListenAddr) + "\n" +
		styles.KV("provider", cfg.Provider) + "\n" +
		styles.KV("model", cfg.Model) + "\n" +
		styles.KV("tools", strings.Join(tools.Names(), ", "))
	fmt.Println(styles.Panel("agent", body))

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err = <-errc:
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		err = srv.Shutdown(shutdownCtx)
	}

	if shutdownMetrics != nil {
		flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if merr := shutdownMetrics(flushCtx); merr != nil {
			log.Warn().Err(merr).Msg("metrics shutdown")
		}
	}
	return err
}
