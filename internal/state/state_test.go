package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestOpenMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := Open(path, zerolog.Nop())

	st := s.State()
	if st.InferenceEndpoint != "http://localhost:8000/process" {
		t.Errorf("endpoint = %q, want default", st.InferenceEndpoint)
	}
	if st.RecognitionEngine != "vosk" {
		t.Errorf("engine = %q, want vosk", st.RecognitionEngine)
	}
	if st.DetectionThreshold != 0.5 {
		t.Errorf("threshold = %f, want 0.5", st.DetectionThreshold)
	}
	if !st.SendToInference {
		t.Error("send_to_inference should default to true")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := Open(path, zerolog.Nop())
	s.State().WakeWord = "hey edge"
	s.State().ModelTrained = true
	s.State().DetectionThreshold = 0.7
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := Open(path, zerolog.Nop())
	if reloaded.State().WakeWord != "hey edge" {
		t.Errorf("wake_word = %q after reload", reloaded.State().WakeWord)
	}
	if !reloaded.State().ModelTrained {
		t.Error("model_trained lost after reload")
	}
	if reloaded.State().DetectionThreshold != 0.7 {
		t.Errorf("threshold = %f after reload", reloaded.State().DetectionThreshold)
	}
}

func TestOpenCorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s := Open(path, zerolog.Nop())
	if s.State().RecognitionEngine != "vosk" {
		t.Error("corrupt state file should fall back to defaults")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"hey edge":   "hey_edge",
		"Hey Edge":   "hey_edge",
		" computer ": "computer",
		"OK ROBOT":   "ok_robot",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestModelRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := Open(path, zerolog.Nop())

	if _, ok := s.ModelInfo("hey edge"); ok {
		t.Fatal("unexpected model info in fresh store")
	}

	if err := s.SetModelInfo("hey edge", ModelInfo{
		ModelPath: "models/hey_edge_v0.1.ppn",
		Epochs:    50,
		Samples:   5,
	}); err != nil {
		t.Fatalf("SetModelInfo: %v", err)
	}

	info, ok := s.ModelInfo("Hey Edge") // case-insensitive lookup
	if !ok {
		t.Fatal("model info not found after set")
	}
	if info.ModelPath != "models/hey_edge_v0.1.ppn" {
		t.Errorf("model path = %q", info.ModelPath)
	}
	if info.LastUpdated == "" {
		t.Error("last_updated not stamped")
	}

	// Registry survives reload
	reloaded := Open(path, zerolog.Nop())
	if _, ok := reloaded.ModelInfo("hey edge"); !ok {
		t.Error("model registry lost after reload")
	}

	if err := reloaded.DeleteModelInfo("hey edge"); err != nil {
		t.Fatalf("DeleteModelInfo: %v", err)
	}
	if _, ok := reloaded.ModelInfo("hey edge"); ok {
		t.Error("model info still present after delete")
	}
}

func TestSilenceTimeout(t *testing.T) {
	st := &State{SilenceTimeoutSec: 2.5}
	if got := st.SilenceTimeout().Seconds(); got != 2.5 {
		t.Errorf("SilenceTimeout = %v, want 2.5s", got)
	}
}
