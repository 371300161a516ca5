package wakeword

import (
	"fmt"
	"os"

	porcupine "github.com/Picovoice/porcupine/binding/go"

	"github.com/edgevoice/edgevoice/internal/audio"
)

// PorcupineScorer scores frames with a Picovoice Porcupine keyword model.
// Porcupine reports a binary fired/not-fired decision per keyword, so a
// detection maps to confidence 1.0 and anything else to 0.0; threshold
// semantics are unchanged.
type PorcupineScorer struct {
	model  string
	engine porcupine.Porcupine
	buf    []int16
}

// NewPorcupineScorer loads the keyword file at keywordPath. The model
// identifier reported in ScoreMaps is the wake word name. The access key is
// read from the PORCUPINE_ACCESS_KEY environment variable.
func NewPorcupineScorer(model, paramsPath, keywordPath string) (*PorcupineScorer, error) {
	accessKey := os.Getenv("PORCUPINE_ACCESS_KEY")
	if accessKey == "" {
		return nil, fmt.Errorf("porcupine: PORCUPINE_ACCESS_KEY is not set")
	}

	engine, err := porcupine.NewPorcupine(paramsPath, keywordPath, accessKey)
	if err != nil {
		return nil, fmt.Errorf("porcupine: load keyword %q: %w", keywordPath, err)
	}

	return &PorcupineScorer{model: model, engine: engine}, nil
}

// Score buffers the frame and processes it in Porcupine's native chunk
// size. A frame is 1280 samples and Porcupine consumes 512 at a time, so
// detections may straddle frame boundaries; the fired flag is attributed
// to the frame that completed the chunk.
func (s *PorcupineScorer) Score(frame audio.Frame) (ScoreMap, error) {
	s.buf = append(s.buf, frame...)

	fired := false
	for len(s.buf) >= porcupine.FrameLength {
		chunk := s.buf[:porcupine.FrameLength]
		s.buf = s.buf[porcupine.FrameLength:]

		detected, err := s.engine.Process(chunk)
		if err != nil {
			return nil, fmt.Errorf("porcupine: process: %w", err)
		}
		if detected {
			fired = true
		}
	}

	confidence := float32(0)
	if fired {
		confidence = 1
	}
	return ScoreMap{s.model: confidence}, nil
}

func (s *PorcupineScorer) Models() []string {
	return []string{s.model}
}

func (s *PorcupineScorer) Close() error {
	s.engine.Delete()
	return nil
}
