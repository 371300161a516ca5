// Package agent implements the inference service that receives voice
// transcripts and answers them with a reasoning loop over an LLM. The
// model thinks in marked-up steps, optionally invoking tools, until it
// produces a final answer or runs out of steps.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgevoice/edgevoice/internal/observe"
)

const systemPrompt = `You are an AI assistant that controls a smart home system via voice commands.
You use Reasoning and Acting (ReAct) to process requests.

Your response MUST be in the following format:
|Thought:| [Your reasoning about what to do]
|Action:| [tool_name: argument]
OR
|Final Answer:| [your response to the user]

Available tools:
- run_shell_command: Execute shell commands (use carefully)
- control_light: Control smart lights (args: location, state)
- control_temperature: Set thermostat (args: temperature, unit)
- get_weather: Get weather information (args: location)
- set_timer: Set a timer (args: duration, label)

Rules:
- ONE |Thought:| per response (put all reasoning there)
- EITHER |Action:| OR |Final Answer:|, never both
- If no action needed, just provide |Final Answer:|
- Keep responses concise and natural
- Confirm actions before finishing`

// incompleteAnswer is returned when the reasoning loop hits the step cap.
const incompleteAnswer = "I couldn't complete the request within the step limit. Please try rephrasing."

// Step records one iteration of the reasoning loop.
type Step struct {
	Step        int    `json:"step"`
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action,omitempty"`
	Observation string `json:"observation,omitempty"`
	FinalAnswer string `json:"final_answer,omitempty"`
}

// Result is the outcome of processing one transcript.
type Result struct {
	Status         string `json:"status"`
	Query          string `json:"query"`
	FinalAnswer    string `json:"final_answer"`
	ReasoningSteps []Step `json:"reasoning_steps"`
	StepsTaken     int    `json:"steps_taken"`
}

// Agent runs the reasoning loop.
type Agent struct {
	completer Completer
	tools     *Registry
	maxSteps  int
	log       zerolog.Logger
	metrics   *observe.Metrics
}

func New(completer Completer, tools *Registry, maxSteps int, log zerolog.Logger) *Agent {
	if maxSteps <= 0 {
		maxSteps = 5
	}
	return &Agent{
		completer: completer,
		tools:     tools,
		maxSteps:  maxSteps,
		log:       log.With().Str("component", "agent").Logger(),
		metrics:   observe.Default(),
	}
}

// Run processes one transcript. It returns an error only when the LLM
// itself fails; tool errors are folded into the conversation so the model
// can react to them.
func (a *Agent) Run(ctx context.Context, query string) (Result, error) {
	start := time.Now()
	a.log.Info().Str("query", query).Msg("New request")

	history := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: query},
	}

	result := Result{Status: "incomplete", Query: query, FinalAnswer: incompleteAnswer}

	for step := 1; step <= a.maxSteps; step++ {
		output, err := a.completer.Complete(ctx, history)
		if err != nil {
			return Result{}, fmt.Errorf("step %d: %w", step, err)
		}

		p := parseOutput(output)
		stepData := Step{Step: step, Thought: p.Thought}
		if p.Thought != "" {
			a.log.Debug().Int("step", step).Str("thought", p.Thought).Msg("Thought")
		}

		if p.FinalAnswer != "" {
			stepData.FinalAnswer = p.FinalAnswer
			result.ReasoningSteps = append(result.ReasoningSteps, stepData)
			result.Status = "success"
			result.FinalAnswer = p.FinalAnswer
			result.StepsTaken = step

			a.observeRun(ctx, start, step)
			a.log.Info().Int("steps", step).Str("answer", p.FinalAnswer).Msg("Request complete")
			return result, nil
		}

		if p.HasAction {
			stepData.Action = fmt.Sprintf("%s: %s", p.Tool, p.Arg)
			a.log.Info().Str("tool", p.Tool).Str("arg", p.Arg).Msg("Action")

			observation, err := a.tools.Call(ctx, p.Tool, p.Arg)
			history = append(history, Message{Role: "assistant", Content: output})
			switch {
			case err != nil:
				errMsg := fmt.Sprintf("Error executing %s: %v", p.Tool, err)
				a.log.Warn().Str("tool", p.Tool).Err(err).Msg("Tool failed")
				a.metrics.ToolCalls.Add(ctx, 1, observe.ToolAttr(p.Tool, "error"))
				stepData.Observation = errMsg
				history = append(history, Message{Role: "user", Content: "Error: " + errMsg})
			default:
				a.log.Debug().Str("observation", observation).Msg("Observation")
				a.metrics.ToolCalls.Add(ctx, 1, observe.ToolAttr(p.Tool, "ok"))
				stepData.Observation = observation
				history = append(history, Message{Role: "user", Content: "Observation: " + observation})
			}
		} else {
			// Neither an action nor a final answer; let the model continue.
			history = append(history, Message{Role: "assistant", Content: output})
		}

		result.ReasoningSteps = append(result.ReasoningSteps, stepData)
	}

	result.StepsTaken = a.maxSteps
	a.observeRun(ctx, start, a.maxSteps)
	a.log.Warn().Int("max_steps", a.maxSteps).Msg("Step limit reached without a final answer")
	return result, nil
}

func (a *Agent) observeRun(ctx context.Context, start time.Time, steps int) {
	a.metrics.AgentRequestDuration.Record(ctx, time.Since(start).Seconds())
	a.metrics.AgentSteps.Record(ctx, int64(steps))
}
