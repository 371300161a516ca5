package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/rs/zerolog"

	"github.com/edgevoice/edgevoice/internal/audio"
	"github.com/edgevoice/edgevoice/internal/observe"
)

type voskResult struct {
	Text string `json:"text"`
}

type voskPartial struct {
	Partial string `json:"partial"`
}

// Vosk is a streaming Engine backed by a Kaldi model via vosk-api. Sentence
// boundaries come from the recognizer itself, so sentences are delivered
// while the speaker is still talking.
type Vosk struct {
	model   *vosk.VoskModel
	capture audio.Capture
	log     zerolog.Logger
	metrics *observe.Metrics
}

func NewVosk(modelPath string, capture audio.Capture, log zerolog.Logger) (*Vosk, error) {
	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading vosk model from %s: %w", modelPath, err)
	}

	return &Vosk{
		model:   model,
		capture: capture,
		log:     log.With().Str("component", "recognizer").Str("engine", "vosk").Logger(),
		metrics: observe.Default(),
	}, nil
}

func (v *Vosk) Stream(ctx context.Context, opts Options, onSentence func(string)) ([]string, error) {
	opts.applyDefaults()
	start := time.Now()

	// A fresh recognizer per stream so no state leaks between utterances.
	rec, err := vosk.NewRecognizer(v.model, float64(audio.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("creating vosk recognizer: %w", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan audio.Frame, 32)
	if err := v.capture.Start(cctx, "", frames); err != nil {
		return nil, fmt.Errorf("starting capture: %w", err)
	}
	defer v.capture.Stop()

	gate := newSilenceGate(opts, start)
	var sentences []string

	v.log.Debug().
		Dur("silence_timeout", opts.SilenceTimeout).
		Dur("max_duration", opts.MaxDuration).
		Msg("Recognition stream started")

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
			if rec.AcceptWaveform(audio.ToBytes(frame)) != 0 {
				text := parseVoskText(rec.Result())
				if text != "" {
					gate.markSpeech(now)
					sentences = append(sentences, text)
					v.log.Info().Str("text", text).Msg("Sentence recognized")
					deliver(v.log, onSentence, text)
				}
			} else if partial := parseVoskPartial(rec.PartialResult()); partial != "" {
				gate.markSpeech(now)
			}
		case <-time.After(100 * time.Millisecond):
			// Re-check the gate even if the mic goes quiet.
		}
	}

	if text := parseVoskText(rec.FinalResult()); text != "" {
		sentences = append(sentences, text)
		v.log.Info().Str("text", text).Msg("Sentence recognized")
		deliver(v.log, onSentence, text)
	}

	v.metrics.RecognitionDuration.Record(ctx, time.Since(start).Seconds())
	v.log.Debug().
		Int("sentences", len(sentences)).
		Dur("elapsed", time.Since(start)).
		Msg("Recognition stream finished")

	return sentences, ctx.Err()
}

func (v *Vosk) Close() error {
	return nil
}

func parseVoskText(raw string) string {
	var r voskResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return ""
	}
	return strings.TrimSpace(r.Text)
}

func parseVoskPartial(raw string) string {
	var r voskPartial
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return ""
	}
	return strings.TrimSpace(r.Partial)
}
