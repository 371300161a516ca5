package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

const (
	recorderChunk = 1024
	wavBitDepth   = 16
	wavFormatPCM  = 1
)

// Recorder records WAV training samples for wake word model training.
// Files are 16kHz mono 16-bit PCM, matching the detector's capture format.
type Recorder struct {
	outputDir string
	log       zerolog.Logger
}

// BatchOpts configures a training sample recording run.
type BatchOpts struct {
	WakeWord   string
	NumSamples int
	Duration   time.Duration
	// Kind is "positive" (the wake word) or "negative" (anything else).
	Kind string
	// OnSample is called before each sample is recorded, with the 1-based
	// sample index. Used by the CLI for prompting.
	OnSample func(i int)
}

// NewRecorder creates a recorder writing under outputDir.
func NewRecorder(outputDir string, log zerolog.Logger) (*Recorder, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	log.Info().Str("dir", outputDir).Msg("Audio recorder initialized")
	return &Recorder{outputDir: outputDir, log: log}, nil
}

// RecordSample records a single sample of the given duration to path.
func (r *Recorder) RecordSample(ctx context.Context, duration time.Duration, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create sample directory: %w", err)
	}

	buffer := make([]int16, recorderChunk)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(SampleRate), len(buffer), buffer)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	defer stream.Stop()

	numChunks := int(float64(SampleRate) * duration.Seconds() / float64(recorderChunk))
	samples := make([]int, 0, numChunks*recorderChunk)

	for i := 0; i < numChunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stream.Read(); err != nil {
			return fmt.Errorf("failed to read audio: %w", err)
		}
		for _, s := range buffer {
			samples = append(samples, int(s))
		}
	}

	if err := writeWav(path, samples); err != nil {
		return err
	}

	r.log.Info().Str("path", path).Dur("duration", duration).Msg("Saved audio sample")
	return nil
}

// RecordBatch records multiple samples into
// <outputDir>/<wake_word>/<kind>/<kind>_NNNN.wav and returns how many were
// recorded successfully.
func (r *Recorder) RecordBatch(ctx context.Context, opts BatchOpts) (int, error) {
	if opts.Kind == "" {
		opts.Kind = "positive"
	}
	if opts.Duration <= 0 {
		opts.Duration = 2 * time.Second
	}
	sampleDir := filepath.Join(r.outputDir, opts.WakeWord, opts.Kind)
	if err := os.MkdirAll(sampleDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create sample directory: %w", err)
	}

	recorded := 0
	for i := 1; i <= opts.NumSamples; i++ {
		if err := ctx.Err(); err != nil {
			return recorded, err
		}
		if opts.OnSample != nil {
			opts.OnSample(i)
		}

		path := filepath.Join(sampleDir, fmt.Sprintf("%s_%04d.wav", opts.Kind, i))
		if err := r.RecordSample(ctx, opts.Duration, path); err != nil {
			r.log.Error().Err(err).Int("sample", i).Msg("Failed to record sample")
			continue
		}
		recorded++

		// Short pause so the speaker can reset between takes
		if i < opts.NumSamples {
			select {
			case <-time.After(1500 * time.Millisecond):
			case <-ctx.Done():
				return recorded, ctx.Err()
			}
		}
	}

	return recorded, nil
}

// MicTest reads from the default input for the given duration and reports
// the mean absolute level of each chunk via onLevel.
func (r *Recorder) MicTest(ctx context.Context, duration time.Duration, onLevel func(level float64)) error {
	buffer := make([]int16, recorderChunk)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(SampleRate), len(buffer), buffer)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	defer stream.Stop()

	numChunks := int(float64(SampleRate) * duration.Seconds() / float64(recorderChunk))
	for i := 0; i < numChunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stream.Read(); err != nil {
			return fmt.Errorf("failed to read audio: %w", err)
		}
		if onLevel != nil {
			onLevel(MeanAbs(buffer))
		}
	}
	return nil
}

// SampleCounts reports how many positive/negative samples exist for a wake word.
func (r *Recorder) SampleCounts(wakeWord string) (positive, negative int) {
	positive = countWavs(filepath.Join(r.outputDir, wakeWord, "positive"))
	negative = countWavs(filepath.Join(r.outputDir, wakeWord, "negative"))
	return
}

// Close releases PortAudio.
func (r *Recorder) Close() error {
	return portaudio.Terminate()
}

func countWavs(dir string) int {
	matches, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	if err != nil {
		return 0
	}
	return len(matches)
}

func writeWav(path string, samples []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, SampleRate, wavBitDepth, 1, wavFormatPCM)
	if err := enc.Write(&goaudio.IntBuffer{
		Data: samples,
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  SampleRate,
		},
		SourceBitDepth: wavBitDepth,
	}); err != nil {
		enc.Close()
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	return enc.Close()
}
