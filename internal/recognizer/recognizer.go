// Package recognizer turns post-wake-word microphone audio into sentences.
// Engines stream until the speaker falls silent, delivering each completed
// sentence through a callback as soon as its boundary is known.
package recognizer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Options controls one recognition stream.
type Options struct {
	// SilenceTimeout ends the stream after this much silence once speech
	// has been heard. Default 3s.
	SilenceTimeout time.Duration

	// MaxDuration caps the whole stream. Default 30s.
	MaxDuration time.Duration
}

func (o *Options) applyDefaults() {
	if o.SilenceTimeout <= 0 {
		o.SilenceTimeout = 3 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 30 * time.Second
	}
}

// Engine is a streaming speech recognizer.
type Engine interface {
	// Stream captures microphone audio until silence or the duration cap,
	// invoking onSentence for each completed sentence. It returns all
	// sentences recognized during the stream. A nil onSentence is allowed.
	Stream(ctx context.Context, opts Options, onSentence func(string)) ([]string, error)

	Close() error
}

// deliver invokes the sentence callback, recovering from panics so a bad
// callback cannot abort the recognition stream.
func deliver(log zerolog.Logger, onSentence func(string), text string) {
	if onSentence == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Sentence callback panicked")
		}
	}()
	onSentence(text)
}
