package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ToolFunc executes one tool call. The returned string is fed back to the
// LLM as an observation.
type ToolFunc func(ctx context.Context, arg string) (string, error)

// ErrUnknownTool is returned by Registry.Call for tools the agent does not
// have.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds the agent's tools.
type Registry struct {
	tools map[string]ToolFunc
	log   zerolog.Logger
}

// NewRegistry builds the default tool set, skipping anything listed in
// cfg.DisabledTools. The smart-home tools are stubs wired for log output
// until a real home automation backend exists.
func NewRegistry(cfg Config, log zerolog.Logger) *Registry {
	r := &Registry{
		tools: make(map[string]ToolFunc),
		log:   log.With().Str("component", "tools").Logger(),
	}

	shellTimeout := cfg.ShellTimeout
	if shellTimeout <= 0 {
		shellTimeout = 30 * time.Second
	}

	builtin := map[string]ToolFunc{
		"run_shell_command":   r.runShellCommand(shellTimeout),
		"control_light":       r.controlLight,
		"control_temperature": r.controlTemperature,
		"get_weather":         r.getWeather,
		"set_timer":           r.setTimer,
	}
	for name, fn := range builtin {
		if slices.Contains(cfg.DisabledTools, name) {
			continue
		}
		r.tools[name] = fn
	}
	return r
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call executes a tool by name.
func (r *Registry) Call(ctx context.Context, name, arg string) (string, error) {
	fn, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return fn(ctx, arg)
}

func (r *Registry) runShellCommand(timeout time.Duration) ToolFunc {
	return func(ctx context.Context, arg string) (string, error) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		r.log.Info().Str("command", arg).Msg("Running shell command")

		var stdout, stderr strings.Builder
		cmd := exec.CommandContext(cctx, "sh", "-c", arg)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		if cctx.Err() == context.DeadlineExceeded {
			return "Command execution timed out", nil
		}
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return "Error: " + msg, nil
		}
		return strings.TrimSpace(stdout.String()), nil
	}
}

// splitArgs splits a comma-separated tool argument as the LLM writes them,
// e.g. "living_room, on".
func splitArgs(arg string, n int) []string {
	parts := strings.SplitN(arg, ",", n)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for len(parts) < n {
		parts = append(parts, "")
	}
	return parts
}

func (r *Registry) controlLight(ctx context.Context, arg string) (string, error) {
	parts := splitArgs(arg, 2)
	location, state := parts[0], parts[1]
	if location == "" || state == "" {
		return "", fmt.Errorf("control_light needs \"location, state\", got %q", arg)
	}
	r.log.Info().Str("location", location).Str("state", state).Msg("Light control")
	return fmt.Sprintf("Light in %s turned %s", location, state), nil
}

func (r *Registry) controlTemperature(ctx context.Context, arg string) (string, error) {
	parts := splitArgs(arg, 2)
	temp, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("control_temperature needs \"temperature, unit\", got %q", arg)
	}
	unit := strings.ToUpper(parts[1])
	if unit == "" {
		unit = "F"
	}
	r.log.Info().Int("temperature", temp).Str("unit", unit).Msg("Temperature control")
	return fmt.Sprintf("Temperature set to %d°%s", temp, unit), nil
}

func (r *Registry) getWeather(ctx context.Context, arg string) (string, error) {
	location := strings.TrimSpace(arg)
	if location == "" {
		location = "current"
	}
	return fmt.Sprintf("Weather for %s: Sunny, 72°F", location), nil
}

func (r *Registry) setTimer(ctx context.Context, arg string) (string, error) {
	parts := splitArgs(arg, 2)
	duration, label := parts[0], parts[1]
	if duration == "" {
		return "", fmt.Errorf("set_timer needs a duration, got %q", arg)
	}
	labelText := ""
	if label != "" {
		labelText = " for " + label
	}
	r.log.Info().Str("duration", duration).Str("label", label).Msg("Timer set")
	return fmt.Sprintf("Timer set for %s%s", duration, labelText), nil
}
