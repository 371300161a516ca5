package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

type portAudioCapture struct {
	log zerolog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	dropped atomic.Uint64
}

// New creates a new PortAudio-based audio capture
func New(log zerolog.Logger) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{log: log}, nil
}

func (p *portAudioCapture) Start(ctx context.Context, deviceID string, out chan<- Frame) error {
	device, err := findDevice(deviceID)
	if err != nil {
		return err
	}

	// Open stream: mono int16, 80ms buffers
	buffer := make([]int16, FrameSize)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(SampleRate),
		FramesPerBuffer: len(buffer),
	}, buffer)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	// Read loop
	go func() {
		// Close only this goroutine's stream: a paused capture may have
		// been restarted with a new stream before the old loop unwinds.
		defer func() {
			stream.Close()
			p.detachStream(stream)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := stream.Read(); err != nil {
					return
				}
				// Copy buffer and send
				frame := make(Frame, len(buffer))
				copy(frame, buffer)

				select {
				case out <- frame:
				case <-ctx.Done():
					return
				default:
					// Drop if channel full; frame loss is accepted
					if n := p.dropped.Add(1); n%100 == 1 {
						p.log.Warn().Uint64("dropped", n).Msg("Audio queue full, dropping frames")
					}
				}
			}
		}
	}()

	return nil
}

// detachStream clears the shared handle if it still refers to s, leaving
// any newer stream untouched.
func (p *portAudioCapture) detachStream(s *portaudio.Stream) {
	p.mu.Lock()
	if p.stream == s {
		p.stream = nil
	}
	p.mu.Unlock()
}

func (p *portAudioCapture) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return p.stream.Stop()
	}
	return nil
}

// Dropped reports how many frames have been discarded due to a full queue.
func (p *portAudioCapture) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *portAudioCapture) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:         d.Name,
				Name:       d.Name,
				SampleRate: int(d.DefaultSampleRate),
				Channels:   d.MaxInputChannels,
				Default:    d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	p.mu.Lock()
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	p.mu.Unlock()
	portaudio.Terminate()
	return nil
}

// findDevice resolves a device by name, or the default input device when
// deviceID is empty.
func findDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}
