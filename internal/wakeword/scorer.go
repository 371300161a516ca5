// Package wakeword implements the continuous wake word detection session:
// a capture-fed frame queue, a scoring loop, and detection callbacks with
// start/stop/pause lifecycle.
package wakeword

import (
	"time"

	"github.com/edgevoice/edgevoice/internal/audio"
)

// ScoreMap maps a model identifier to a confidence value in [0, 1] for a
// single frame. Scorers that track fewer models than the session knows
// about may return a partial map; missing entries count as zero.
type ScoreMap map[string]float32

// Detection is emitted when a model's confidence meets the session threshold.
type Detection struct {
	Model      string
	Confidence float32
	Timestamp  time.Time
}

// Scorer scores one frame of audio against one or more loaded wake word
// models. Implementations are only ever called from the session's single
// consumer goroutine, so they need not be safe for concurrent use.
type Scorer interface {
	// Score returns per-model confidences for the given frame.
	Score(frame audio.Frame) (ScoreMap, error)

	// Models lists the model identifiers this scorer can report.
	Models() []string

	Close() error
}
