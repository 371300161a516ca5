package recognizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"

	"github.com/edgevoice/edgevoice/internal/audio"
	"github.com/edgevoice/edgevoice/internal/observe"
)

// Whisper is a batch Engine backed by whisper.cpp. It has no streaming
// decoder, so it buffers the whole utterance and decodes once silence ends
// it. Sentences therefore arrive only after the speaker stops.
type Whisper struct {
	model   whisper.Model
	capture audio.Capture
	threads int
	lang    string
	log     zerolog.Logger
	metrics *observe.Metrics
}

// WhisperConfig tunes the whisper engine.
type WhisperConfig struct {
	ModelPath string
	Threads   int
	Language  string
}

func NewWhisper(cfg WhisperConfig, capture audio.Capture, log zerolog.Logger) (*Whisper, error) {
	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("loading whisper model from %s: %w", cfg.ModelPath, err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}

	return &Whisper{
		model:   model,
		capture: capture,
		threads: cfg.Threads,
		lang:    lang,
		log:     log.With().Str("component", "recognizer").Str("engine", "whisper").Logger(),
		metrics: observe.Default(),
	}, nil
}

func (w *Whisper) Stream(ctx context.Context, opts Options, onSentence func(string)) ([]string, error) {
	opts.applyDefaults()
	start := time.Now()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan audio.Frame, 32)
	if err := w.capture.Start(cctx, "", frames); err != nil {
		return nil, fmt.Errorf("starting capture: %w", err)
	}

	gate := newSilenceGate(opts, start)
	samples := make([]float32, 0, audio.SampleRate*int(opts.MaxDuration/time.Second))

loop:
	for {
		now := time.Now()
		if gate.expired(now) {
			break
		}

		select {
		case <-ctx.Done():
			break loop
		case frame := <-frames:
			gate.observe(frame, now)
			samples = append(samples, audio.ToFloat32(frame)...)
		case <-time.After(100 * time.Millisecond):
		}
	}

	// Release the mic before the decode; decoding can take a while.
	if err := w.capture.Stop(); err != nil {
		w.log.Warn().Err(err).Msg("Stopping capture")
	}

	sentences, err := w.decode(samples)
	if err != nil {
		return nil, err
	}
	for _, text := range sentences {
		w.log.Info().Str("text", text).Msg("Sentence recognized")
		deliver(w.log, onSentence, text)
	}

	w.metrics.RecognitionDuration.Record(ctx, time.Since(start).Seconds())
	w.log.Debug().
		Int("sentences", len(sentences)).
		Dur("elapsed", time.Since(start)).
		Msg("Recognition stream finished")

	return sentences, ctx.Err()
}

func (w *Whisper) decode(samples []float32) ([]string, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("creating whisper context: %w", err)
	}

	if w.threads > 0 {
		wctx.SetThreads(uint(w.threads))
	}
	if w.lang != "auto" {
		wctx.SetLanguage(w.lang)
	}
	wctx.SetTranslate(false)

	if err := wctx.Process(samples, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper decode failed: %w", err)
	}

	var sentences []string
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			break
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			sentences = append(sentences, text)
		}
	}
	return sentences, nil
}

func (w *Whisper) Close() error {
	if w.model != nil {
		w.model.Close()
		w.model = nil
	}
	return nil
}
