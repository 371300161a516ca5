// Package trainer manages wake word model training. Sample recording and
// state bookkeeping happen in-process; the actual model training runs the
// external training pipeline as a subprocess and installs its output.
package trainer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgevoice/edgevoice/internal/audio"
	"github.com/edgevoice/edgevoice/internal/state"
)

// modelVersion is the suffix the training pipeline stamps on its output.
const modelVersion = "v0.1"

// SampleRecorder records training samples. *audio.Recorder implements it.
type SampleRecorder interface {
	RecordBatch(ctx context.Context, opts audio.BatchOpts) (int, error)
	SampleCounts(wakeWord string) (positive, negative int)
}

// Config wires a Trainer. Zero-value fields get defaults.
type Config struct {
	Store    *state.Store
	Recorder SampleRecorder

	// WorkDir holds the training pipeline and its trained_models output.
	WorkDir string

	// ModelsDir is where finished models are installed.
	ModelsDir string

	Python        string // default "python3"
	Script        string // default "train-full-model.py"
	Epochs        int    // default 50
	Augmentations int    // default 20

	// NumSamples is how many positive samples to record before training.
	NumSamples     int // default 5
	SampleDuration time.Duration

	// OnSample is forwarded to the recorder for CLI prompting.
	OnSample func(i int)

	Logger zerolog.Logger

	// Run executes the training subprocess. Defaults to a real exec;
	// tests replace it.
	Run func(ctx context.Context, dir, name string, args ...string) error
}

// Trainer orchestrates record-train-install cycles.
type Trainer struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config) *Trainer {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Script == "" {
		cfg.Script = "train-full-model.py"
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 50
	}
	if cfg.Augmentations <= 0 {
		cfg.Augmentations = 20
	}
	if cfg.NumSamples <= 0 {
		cfg.NumSamples = 5
	}
	if cfg.SampleDuration <= 0 {
		cfg.SampleDuration = 2 * time.Second
	}
	log := cfg.Logger.With().Str("component", "trainer").Logger()
	if cfg.Run == nil {
		cfg.Run = runCommand(log)
	}
	return &Trainer{cfg: cfg, log: log}
}

// ModelPath returns where the installed model for a wake word lives.
func (t *Trainer) ModelPath(wakeWord string) string {
	normalized := state.Normalize(wakeWord)
	return filepath.Join(t.cfg.ModelsDir, fmt.Sprintf("%s_%s.onnx", normalized, modelVersion))
}

// ModelExists checks the install location and the training output
// location for a finished model.
func (t *Trainer) ModelExists(wakeWord string) (string, bool) {
	path := t.ModelPath(wakeWord)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}

	normalized := state.Normalize(wakeWord)
	alt := filepath.Join(t.cfg.WorkDir, "trained_models", normalized,
		fmt.Sprintf("%s_%s.onnx", normalized, modelVersion))
	if _, err := os.Stat(alt); err == nil {
		return alt, true
	}
	return "", false
}

// EnsureModel returns a usable model path for the wake word, training one
// first if none exists or retrain is set.
func (t *Trainer) EnsureModel(ctx context.Context, wakeWord string, retrain bool) (string, error) {
	if path, ok := t.ModelExists(wakeWord); ok && !retrain {
		t.log.Info().Str("wake_word", wakeWord).Str("model", path).Msg("Using existing model")
		return path, nil
	}
	return t.Train(ctx, wakeWord)
}

// Train runs a full record-train-install cycle and returns the installed
// model path.
func (t *Trainer) Train(ctx context.Context, wakeWord string) (string, error) {
	normalized := state.Normalize(wakeWord)
	t.log.Info().Str("wake_word", wakeWord).Msg("Starting training")

	recorded := 0
	if t.cfg.Recorder != nil {
		var err error
		recorded, err = t.cfg.Recorder.RecordBatch(ctx, audio.BatchOpts{
			WakeWord:   normalized,
			NumSamples: t.cfg.NumSamples,
			Duration:   t.cfg.SampleDuration,
			Kind:       "positive",
			OnSample:   t.cfg.OnSample,
		})
		if err != nil {
			return "", fmt.Errorf("recording samples: %w", err)
		}
		if recorded == 0 {
			return "", fmt.Errorf("no samples recorded for %q", wakeWord)
		}
		t.log.Info().Int("samples", recorded).Msg("Samples recorded")
	}

	err := t.cfg.Run(ctx, t.cfg.WorkDir, t.cfg.Python, t.cfg.Script,
		"--wake-word", wakeWord,
		"--epochs", fmt.Sprintf("%d", t.cfg.Epochs),
		"--augmentations", fmt.Sprintf("%d", t.cfg.Augmentations),
	)
	if err != nil {
		return "", fmt.Errorf("training pipeline failed: %w", err)
	}

	installed, err := t.install(normalized)
	if err != nil {
		return "", err
	}

	if t.cfg.Store != nil {
		st := t.cfg.Store.State()
		st.WakeWord = wakeWord
		st.ModelPath = installed
		st.ModelTrained = true
		st.LastTraining = time.Now().UTC().Format(time.RFC3339)
		if err := t.cfg.Store.SetModelInfo(wakeWord, state.ModelInfo{
			WakeWord:    wakeWord,
			ModelPath:   installed,
			Epochs:      t.cfg.Epochs,
			Samples:     recorded,
			LastUpdated: st.LastTraining,
		}); err != nil {
			return "", fmt.Errorf("saving state: %w", err)
		}
	}

	t.log.Info().Str("model", installed).Msg("Training complete")
	return installed, nil
}

// install copies the training output into the models directory.
func (t *Trainer) install(normalized string) (string, error) {
	outDir := filepath.Join(t.cfg.WorkDir, "trained_models", normalized)
	pattern := filepath.Join(outDir, fmt.Sprintf("%s_%s.onnx*", normalized, modelVersion))
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("training produced no model files under %s", outDir)
	}

	if err := os.MkdirAll(t.cfg.ModelsDir, 0755); err != nil {
		return "", fmt.Errorf("creating models directory: %w", err)
	}
	for _, src := range matches {
		dst := filepath.Join(t.cfg.ModelsDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return "", fmt.Errorf("installing %s: %w", filepath.Base(src), err)
		}
	}
	return t.ModelPath(normalized), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// runCommand returns the default subprocess runner, streaming output into
// the log.
func runCommand(log zerolog.Logger) func(ctx context.Context, dir, name string, args ...string) error {
	return func(ctx context.Context, dir, name string, args ...string) error {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Dir = dir

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return err
		}
		cmd.Stderr = cmd.Stdout

		if err := cmd.Start(); err != nil {
			return err
		}

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			log.Info().Str("pipeline", name).Msg(scanner.Text())
		}
		return cmd.Wait()
	}
}
