package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// scriptedCompleter returns canned responses in order and records the
// history it was called with.
type scriptedCompleter struct {
	responses []string
	calls     [][]Message
	err       error
}

func (s *scriptedCompleter) Complete(_ context.Context, history []Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	cp := make([]Message, len(history))
	copy(cp, history)
	s.calls = append(s.calls, cp)
	if len(s.calls) > len(s.responses) {
		return "", errors.New("no scripted response left")
	}
	return s.responses[len(s.calls)-1], nil
}

func newTestAgent(c Completer) *Agent {
	return New(c, NewRegistry(DefaultConfig(), zerolog.Nop()), 5, zerolog.Nop())
}

func TestAgentDirectAnswer(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		"|Thought:| Just a greeting.\n|Final Answer:| Hello there!",
	}}

	result, err := newTestAgent(c).Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != "success" {
		t.Errorf("status = %q", result.Status)
	}
	if result.FinalAnswer != "Hello there!" {
		t.Errorf("final answer = %q", result.FinalAnswer)
	}
	if result.StepsTaken != 1 {
		t.Errorf("steps taken = %d, want 1", result.StepsTaken)
	}
	if len(result.ReasoningSteps) != 1 {
		t.Fatalf("reasoning steps = %d, want 1", len(result.ReasoningSteps))
	}
	if result.ReasoningSteps[0].Thought != "Just a greeting." {
		t.Errorf("thought = %q", result.ReasoningSteps[0].Thought)
	}
}

func TestAgentToolRoundTrip(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		"|Thought:| Turn on the light.\n|Action:| control_light: kitchen, on",
		"|Thought:| Done.\n|Final Answer:| The kitchen light is on.",
	}}

	result, err := newTestAgent(c).Run(context.Background(), "turn on the kitchen light")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != "success" {
		t.Errorf("status = %q", result.Status)
	}
	if result.StepsTaken != 2 {
		t.Errorf("steps taken = %d, want 2", result.StepsTaken)
	}
	if obs := result.ReasoningSteps[0].Observation; obs != "Light in kitchen turned on" {
		t.Errorf("observation = %q", obs)
	}

	// The second call must carry the assistant turn and the observation.
	second := c.calls[1]
	last := second[len(second)-1]
	if last.Role != "user" || !strings.HasPrefix(last.Content, "Observation: ") {
		t.Errorf("last history turn = %+v", last)
	}
}

func TestAgentUnknownToolFeedsErrorBack(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		"|Action:| open_garage: now",
		"|Final Answer:| Sorry, I can't do that.",
	}}

	result, err := newTestAgent(c).Run(context.Background(), "open the garage")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != "success" {
		t.Errorf("status = %q", result.Status)
	}
	if obs := result.ReasoningSteps[0].Observation; !strings.Contains(obs, "open_garage") {
		t.Errorf("observation = %q", obs)
	}

	second := c.calls[1]
	last := second[len(second)-1]
	if !strings.HasPrefix(last.Content, "Error: ") {
		t.Errorf("last history turn = %+v", last)
	}
}

func TestAgentStepLimit(t *testing.T) {
	// The model never reaches an answer.
	c := &scriptedCompleter{responses: []string{
		"|Thought:| Hmm.", "|Thought:| Hmm.", "|Thought:| Hmm.",
	}}
	a := New(c, NewRegistry(DefaultConfig(), zerolog.Nop()), 3, zerolog.Nop())

	result, err := a.Run(context.Background(), "do something")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != "incomplete" {
		t.Errorf("status = %q", result.Status)
	}
	if result.StepsTaken != 3 {
		t.Errorf("steps taken = %d, want 3", result.StepsTaken)
	}
	if result.FinalAnswer != incompleteAnswer {
		t.Errorf("final answer = %q", result.FinalAnswer)
	}
}

func TestAgentLLMErrorPropagates(t *testing.T) {
	c := &scriptedCompleter{err: errors.New("backend down")}
	if _, err := newTestAgent(c).Run(context.Background(), "hello"); err == nil {
		t.Fatal("Run succeeded, want error")
	}
}

func newTestServer(c Completer) *Server {
	cfg := DefaultConfig()
	tools := NewRegistry(cfg, zerolog.Nop())
	a := New(c, tools, cfg.MaxSteps, zerolog.Nop())
	return NewServer(cfg, a, tools, zerolog.Nop())
}

func TestServerProcess(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		"|Final Answer:| All set.",
	}}
	srv := newTestServer(c)

	body, _ := json.Marshal(transcriptRequest{
		Transcript: "turn on the light",
		Source:     "edgevoice",
		WakeWord:   "hey_edge",
	})
	req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.https.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.Status != "success" || result.FinalAnswer != "All set." {
		t.Errorf("result = %+v", result)
	}
}

func TestServerProcessRejectsMissingTranscript(t *testing.T) {
	srv := newTestServer(&scriptedCompleter{})

	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.https.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServerProcessLLMFailureIs500(t *testing.T) {
	srv := newTestServer(&scriptedCompleter{err: errors.New("backend down")})

	body := `{"transcript": "hello"}`
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.https.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServerHealth(t *testing.T) {
	srv := newTestServer(&scriptedCompleter{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.https.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health struct {
		Status string   `json:"status"`
		Tools  []string `json:"tools_available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q", health.Status)
	}
	if len(health.Tools) == 0 {
		t.Error("no tools reported")
	}
}

func TestServerIndex(t *testing.T) {
	srv := newTestServer(&scriptedCompleter{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.https.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/process") {
		t.Errorf("index body = %s", rec.Body.String())
	}
}
