// Package state persists assistant settings and the trained model registry
// across sessions in a JSON file.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// State is everything the assistant remembers between runs.
type State struct {
	WakeWord           string  `json:"wake_word"`
	ModelPath          string  `json:"model_path"`
	ModelTrained       bool    `json:"model_trained"`
	LastTraining       string  `json:"last_training,omitempty"` // RFC3339
	InferenceEndpoint  string  `json:"inference_endpoint"`
	RecognitionEngine  string  `json:"recognition_engine"` // "vosk" or "whisper"
	VoskModelPath      string  `json:"vosk_model_path"`
	SilenceTimeoutSec  float64 `json:"silence_timeout"`
	DetectionThreshold float32 `json:"detection_threshold"`
	SendToInference    bool    `json:"send_to_inference"`

	// Models is the per-wake-word training registry, keyed by the
	// normalized wake word.
	Models map[string]ModelInfo `json:"models,omitempty"`
}

// ModelInfo tracks one trained wake word model.
type ModelInfo struct {
	WakeWord    string `json:"wake_word"`
	ModelPath   string `json:"model_path"`
	Epochs      int    `json:"epochs,omitempty"`
	Samples     int    `json:"samples,omitempty"`
	LastUpdated string `json:"last_updated"` // RFC3339
}

// Store loads and saves State at a fixed path.
type Store struct {
	path  string
	log   zerolog.Logger
	state *State
}

// DefaultPath returns the platform-specific state file path.
func DefaultPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "edgevoice", "state.json")
}

// ModelsDir returns where installed wake word models live.
func ModelsDir() string {
	return filepath.Join(filepath.Dir(DefaultPath()), "models")
}

// Open loads the state file at path, falling back to defaults when the
// file is missing or corrupt. A corrupt file is logged, not fatal.
func Open(path string, log zerolog.Logger) *Store {
	if path == "" {
		path = DefaultPath()
	}
	s := &Store{path: path, log: log, state: defaults()}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Could not read state file, using defaults")
		}
		return s
	}

	if err := json.Unmarshal(data, s.state); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Corrupt state file, using defaults")
		s.state = defaults()
	}
	return s
}

func defaults() *State {
	return &State{
		InferenceEndpoint:  "http://localhost:8000/process",
		RecognitionEngine:  "vosk",
		VoskModelPath:      filepath.Join(ModelsDir(), "vosk-model-small-en-us-0.15"),
		SilenceTimeoutSec:  3.0,
		DetectionThreshold: 0.5,
		SendToInference:    true,
		Models:             map[string]ModelInfo{},
	}
}

// State returns the in-memory state. Mutations are persisted with Save.
func (s *Store) State() *State {
	return s.state
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Save writes the state atomically (temp file + rename).
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("state: create directory: %w", err)
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("state: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("state: rename: %w", err)
	}
	return nil
}

// SilenceTimeout returns the configured silence timeout as a Duration.
func (st *State) SilenceTimeout() time.Duration {
	return time.Duration(st.SilenceTimeoutSec * float64(time.Second))
}

// Normalize converts a wake word to its registry/file key form:
// "Hey Edge" -> "hey_edge".
func Normalize(wakeWord string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(wakeWord)), " ", "_")
}

// ModelInfo returns registry info for a wake word, if known.
func (s *Store) ModelInfo(wakeWord string) (ModelInfo, bool) {
	info, ok := s.state.Models[Normalize(wakeWord)]
	return info, ok
}

// SetModelInfo records a trained model and persists the state.
func (s *Store) SetModelInfo(wakeWord string, info ModelInfo) error {
	info.WakeWord = wakeWord
	info.LastUpdated = time.Now().Format(time.RFC3339)
	if s.state.Models == nil {
		s.state.Models = map[string]ModelInfo{}
	}
	s.state.Models[Normalize(wakeWord)] = info
	return s.Save()
}

// DeleteModelInfo removes a model from the registry and persists the state.
func (s *Store) DeleteModelInfo(wakeWord string) error {
	key := Normalize(wakeWord)
	if _, ok := s.state.Models[key]; !ok {
		return nil
	}
	delete(s.state.Models, key)
	return s.Save()
}

// ListModels returns the registry keyed by normalized wake word.
func (s *Store) ListModels() map[string]ModelInfo {
	return s.state.Models
}
