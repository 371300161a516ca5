// Package assistant glues the pipeline together: a wake word session owns
// the microphone until a detection fires, then the recognizer takes the
// mic to capture the command, each recognized sentence is forwarded to the
// inference endpoint, and the session resumes listening.
package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgevoice/edgevoice/internal/recognizer"
	"github.com/edgevoice/edgevoice/internal/wakeword"
)

// WakeSession is the slice of *wakeword.Session the assistant drives.
type WakeSession interface {
	Start() error
	Stop() error
	PauseAsync() error
	State() wakeword.State
}

// Forwarder ships one transcript to the inference endpoint.
type Forwarder interface {
	Send(ctx context.Context, transcript string) (string, error)
}

// Config wires an Assistant.
type Config struct {
	Session    WakeSession
	Recognizer recognizer.Engine

	// Forwarder may be nil when forwarding is disabled; transcripts are
	// then only logged.
	Forwarder Forwarder

	RecognizeOpts recognizer.Options

	// UI hooks, all optional.
	OnDetection func(wakeword.Detection)
	OnSentence  func(sentence string)
	OnReply     func(reply string)

	Logger zerolog.Logger
}

// Assistant runs the detect-recognize-forward loop.
type Assistant struct {
	cfg  Config
	log  zerolog.Logger
	wake chan wakeword.Detection
}

func New(cfg Config) (*Assistant, error) {
	if cfg.Session == nil {
		return nil, errors.New("assistant: session is required")
	}
	if cfg.Recognizer == nil {
		return nil, errors.New("assistant: recognizer is required")
	}
	return &Assistant{
		cfg:  cfg,
		log:  cfg.Logger.With().Str("component", "assistant").Logger(),
		wake: make(chan wakeword.Detection, 1),
	}, nil
}

// Notify is the session's detection callback. It runs on the scoring
// goroutine: it releases the microphone and hands the detection to the run
// loop. Detections arriving while one is already being handled are
// dropped.
func (a *Assistant) Notify(d wakeword.Detection) {
	if err := a.cfg.Session.PauseAsync(); err != nil {
		a.log.Error().Err(err).Msg("Pausing session")
	}
	select {
	case a.wake <- d:
	default:
		a.log.Debug().Str("model", d.Model).Msg("Detection dropped, handler busy")
	}
}

// Run starts the session and processes detections until ctx is cancelled.
func (a *Assistant) Run(ctx context.Context) error {
	if err := a.cfg.Session.Start(); err != nil {
		return err
	}
	a.log.Info().Msg("Assistant running")

	for {
		select {
		case <-ctx.Done():
			if err := a.cfg.Session.Stop(); err != nil {
				a.log.Error().Err(err).Msg("Stopping session")
			}
			a.log.Info().Msg("Assistant stopped")
			return nil
		case d := <-a.wake:
			a.handleWake(ctx, d)
		}
	}
}

// handleWake runs one recognition pass and resumes the session.
func (a *Assistant) handleWake(ctx context.Context, d wakeword.Detection) {
	a.log.Info().
		Str("model", d.Model).
		Float32("confidence", d.Confidence).
		Msg("Handling detection")
	if a.cfg.OnDetection != nil {
		a.cfg.OnDetection(d)
	}

	seq := 0
	sentences, err := a.cfg.Recognizer.Stream(ctx, a.cfg.RecognizeOpts, func(sentence string) {
		seq++
		if a.cfg.OnSentence != nil {
			a.cfg.OnSentence(sentence)
		}
		a.forward(ctx, seq, sentence)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error().Err(err).Msg("Recognition failed")
	}
	if len(sentences) == 0 {
		a.log.Info().Msg("Nothing recognized after wake word")
	}

	if ctx.Err() != nil {
		return
	}

	// Short settle so the recognizer has fully released the device.
	time.Sleep(100 * time.Millisecond)
	if err := a.cfg.Session.Start(); err != nil {
		a.log.Error().Err(err).Msg("Resuming session")
	}
}

func (a *Assistant) forward(ctx context.Context, seq int, sentence string) {
	if a.cfg.Forwarder == nil {
		a.log.Info().Int("seq", seq).Str("transcript", sentence).Msg("Forwarding disabled, transcript logged only")
		return
	}
	reply, err := a.cfg.Forwarder.Send(ctx, sentence)
	if err != nil {
		a.log.Error().Err(err).Int("seq", seq).Str("transcript", sentence).Msg("Forwarding failed")
		return
	}
	if reply != "" {
		a.log.Info().Str("reply", reply).Msg("Endpoint replied")
		if a.cfg.OnReply != nil {
			a.cfg.OnReply(reply)
		}
	}
}
