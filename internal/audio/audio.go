package audio

import "context"

const (
	// SampleRate is the capture rate used across the whole pipeline.
	SampleRate = 16000

	// FrameSize is the number of samples per frame: 80ms at 16kHz. This is
	// the chunk size the wake word scorers are tuned for.
	FrameSize = 1280
)

// Frame is one fixed-size chunk of mono 16-bit audio, the atomic unit
// passed from capture to the wake word scorer.
type Frame []int16

// Capture defines the interface for audio capture
type Capture interface {
	// Start opens the input device and pushes frames into out until ctx is
	// cancelled. It must not block the caller; the device read loop runs in
	// its own goroutine. When out is full, frames are dropped.
	Start(ctx context.Context, deviceID string, out chan<- Frame) error
	Stop() error
	ListDevices() ([]Device, error)
	Close() error
}

// Device represents an audio input device
type Device struct {
	ID         string
	Name       string
	SampleRate int
	Channels   int
	Default    bool
}
