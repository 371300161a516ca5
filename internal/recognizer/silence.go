package recognizer

import (
	"time"

	"github.com/edgevoice/edgevoice/internal/audio"
)

// rmsSpeechThreshold is the RMS amplitude above which a frame counts as
// speech. Tuned for 16-bit mono capture in a quiet room.
const rmsSpeechThreshold = 500

// silenceGate decides when a recognition stream should end. The silence
// timer only arms once speech has actually been heard, so a stream that
// opens into a quiet room waits for the speaker rather than exiting
// immediately.
type silenceGate struct {
	timeout     time.Duration
	maxDuration time.Duration

	started    bool
	startedAt  time.Time
	lastSpeech time.Time
}

func newSilenceGate(opts Options, now time.Time) *silenceGate {
	return &silenceGate{
		timeout:     opts.SilenceTimeout,
		maxDuration: opts.MaxDuration,
		startedAt:   now,
	}
}

// observe updates the gate from a captured frame.
func (g *silenceGate) observe(frame audio.Frame, now time.Time) {
	if audio.RMS(frame) > rmsSpeechThreshold {
		g.markSpeech(now)
	}
}

// markSpeech records speech evidence from any source, including partial
// recognizer output that an amplitude check might miss.
func (g *silenceGate) markSpeech(now time.Time) {
	g.started = true
	g.lastSpeech = now
}

// expired reports whether the stream should end.
func (g *silenceGate) expired(now time.Time) bool {
	if now.Sub(g.startedAt) >= g.maxDuration {
		return true
	}
	return g.started && now.Sub(g.lastSpeech) >= g.timeout
}
