package wakeword

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgevoice/edgevoice/internal/audio"
	"github.com/edgevoice/edgevoice/internal/observe"
)

// State is the lifecycle state of a detection session.
type State int

const (
	StateIdle State = iota
	StateListening
	StatePaused
	StateStopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	defaultQueueSize = 32
	joinTimeout      = 2 * time.Second
)

// ErrNoScorer is returned by NewSession when no scorer is configured.
var ErrNoScorer = errors.New("wakeword: scorer is required")

// Config configures a detection session.
type Config struct {
	Capture audio.Capture
	Scorer  Scorer

	// Threshold is the per-model confidence cutoff. Default 0.5.
	Threshold float32

	// DeviceID selects the input device; empty means the default device.
	DeviceID string

	// QueueSize bounds the capture-to-scorer frame FIFO. When the queue is
	// full the capture side drops frames rather than blocking the device
	// callback. Default 32.
	QueueSize int

	// OnDetection is invoked synchronously on the scoring goroutine for
	// every frame whose confidence meets the threshold. The callback may
	// call StopAsync on the session; it must not call Stop.
	OnDetection func(Detection)

	Logger  zerolog.Logger
	Metrics *observe.Metrics
}

// Session owns an audio capture handle and a single scoring goroutine.
// All methods are safe for concurrent use.
type Session struct {
	capture     audio.Capture
	scorer      Scorer
	threshold   float32
	deviceID    string
	queueSize   int
	onDetection func(Detection)
	log         zerolog.Logger
	metrics     *observe.Metrics

	mu     sync.Mutex
	state  State
	stop   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// NewSession creates a session in the Idle state. Call Start to begin
// listening.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Scorer == nil {
		return nil, ErrNoScorer
	}
	if cfg.Capture == nil {
		return nil, errors.New("wakeword: capture is required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Session{
		capture:     cfg.Capture,
		scorer:      cfg.Scorer,
		threshold:   cfg.Threshold,
		deviceID:    cfg.DeviceID,
		queueSize:   cfg.QueueSize,
		onDetection: cfg.OnDetection,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
	}, nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Threshold returns the configured confidence cutoff.
func (s *Session) Threshold() float32 {
	return s.threshold
}

// Start opens the capture handle and spawns the scoring goroutine,
// transitioning Idle/Paused/Stopped to Listening. Starting a session that
// is already listening is a logged no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateListening {
		s.log.Warn().Msg("Wake word session is already listening")
		return nil
	}

	frames := make(chan audio.Frame, s.queueSize)
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.capture.Start(ctx, s.deviceID, frames); err != nil {
		cancel()
		return fmt.Errorf("wakeword: start capture: %w", err)
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.cancel = cancel
	s.state = StateListening

	go s.loop(frames, s.stop, s.done)

	s.log.Info().
		Strs("models", s.scorer.Models()).
		Float32("threshold", s.threshold).
		Msg("Wake word session listening")
	return nil
}

// Stop ends listening: it signals the scoring goroutine, closes the capture
// handle, and joins the goroutine with a bounded timeout. Stop must not be
// called from the detection callback; use StopAsync there.
func (s *Session) Stop() error {
	return s.shutdown(true, StateStopped)
}

// StopAsync ends listening without joining the scoring goroutine. It is
// safe to call from inside the detection callback, which runs on that very
// goroutine and must not wait for itself.
func (s *Session) StopAsync() error {
	return s.shutdown(false, StateStopped)
}

// Pause releases the microphone so a downstream recognizer can use it.
// Semantically it is stop-then-later-Start: the capture handle is fully
// closed while paused.
func (s *Session) Pause() error {
	return s.shutdown(true, StatePaused)
}

// PauseAsync is Pause for use inside the detection callback.
func (s *Session) PauseAsync() error {
	return s.shutdown(false, StatePaused)
}

func (s *Session) shutdown(wait bool, next State) error {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return nil
	}
	s.state = next
	close(s.stop)
	s.cancel()
	err := s.capture.Stop()
	done := s.done
	s.mu.Unlock()

	if wait {
		select {
		case <-done:
		case <-time.After(joinTimeout):
			s.log.Warn().Msg("Scoring goroutine did not exit before join timeout")
		}
	}

	if err != nil {
		return fmt.Errorf("wakeword: stop capture: %w", err)
	}
	s.log.Info().Str("state", next.String()).Msg("Wake word session stopped")
	return nil
}

// loop is the single consumer: it pops frames from the bounded queue,
// scores them, and fires the detection callback for qualifying entries.
func (s *Session) loop(frames <-chan audio.Frame, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case frame := <-frames:
			s.processFrame(frame)
		}
	}
}

func (s *Session) processFrame(frame audio.Frame) {
	scores, err := s.scorer.Score(frame)
	if err != nil {
		// A scorer error skips the frame; frame loss is not fatal.
		s.log.Error().Err(err).Msg("Scoring error")
		return
	}

	if s.metrics != nil {
		s.metrics.FramesScored.Add(context.Background(), 1)
		var top float32
		for _, c := range scores {
			if c > top {
				top = c
			}
		}
		s.metrics.Score.Record(context.Background(), float64(top))
	}

	now := time.Now()
	for model, confidence := range scores {
		if confidence < s.threshold {
			continue
		}
		s.log.Info().
			Str("model", model).
			Float32("confidence", confidence).
			Msg("Wake word detected")
		if s.metrics != nil {
			s.metrics.Detections.Add(context.Background(), 1, observe.ModelAttr(model))
		}
		s.emit(Detection{Model: model, Confidence: confidence, Timestamp: now})
	}
}

// emit invokes the user callback, recovering from panics so a misbehaving
// callback cannot kill the scoring goroutine.
func (s *Session) emit(d Detection) {
	if s.onDetection == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("Detection callback panicked")
		}
	}()
	s.onDetection(d)
}
