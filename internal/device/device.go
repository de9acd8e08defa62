// Package device implements microphone acquisition on top of PortAudio.
package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/blowsense/internal/session"
	"github.com/rs/zerolog"
)

const framesPerBuffer = 512

// Options selects the input device and capture format.
type Options struct {
	DeviceID   string // empty = default input device
	SampleRate int
}

// Provider implements session.Provider. One Provider owns the PortAudio
// runtime; Close terminates it.
type Provider struct {
	opts Options
	log  zerolog.Logger
}

// New initializes PortAudio and returns a Provider.
func New(opts Options, log zerolog.Logger) (*Provider, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Provider{opts: opts, log: log}, nil
}

// RequestAccess waits for microphone permission, opens the configured input
// device and starts delivering sample chunks. A platform refusal surfaces
// as session.ErrPermissionDenied.
func (p *Provider) RequestAccess(ctx context.Context) (session.Stream, error) {
	if err := awaitMicrophonePermission(ctx); err != nil {
		return nil, err
	}

	device, err := p.findDevice()
	if err != nil {
		return nil, err
	}

	buffer := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(p.opts.SampleRate),
		FramesPerBuffer: len(buffer),
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	s := &paStream{
		stream: stream,
		buffer: buffer,
		out:    make(chan []float32, 8),
		done:   make(chan struct{}),
	}
	go s.readLoop(p.log)
	return s, nil
}

func (p *Provider) findDevice() (*portaudio.DeviceInfo, error) {
	if p.opts.DeviceID == "" {
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
		if d.Name == p.opts.DeviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", p.opts.DeviceID)
}

// InputDevice describes an available audio input.
type InputDevice struct {
	ID      string
	Name    string
	Default bool
}

// ListDevices enumerates input-capable devices.
func (p *Provider) ListDevices() ([]InputDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]InputDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, InputDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}
	return result, nil
}

// Close terminates the PortAudio runtime.
func (p *Provider) Close() error {
	portaudio.Terminate()
	return nil
}

// paStream delivers mono float32 chunks from a running PortAudio stream.
type paStream struct {
	stream    *portaudio.Stream
	buffer    []float32
	out       chan []float32
	done      chan struct{}
	closeOnce sync.Once
}

func (s *paStream) Samples() <-chan []float32 { return s.out }

func (s *paStream) readLoop(log zerolog.Logger) {
	defer s.stream.Close()
	for {
		select {
		case <-s.done:
			return
		default:
			if err := s.stream.Read(); err != nil {
				log.Error().Err(err).Msg("audio read failed")
				return
			}
			samples := make([]float32, len(s.buffer))
			copy(samples, s.buffer)

			select {
			case s.out <- samples:
			case <-s.done:
				return
			default:
				// Drop if the consumer lags (backpressure)
			}
		}
	}
}

// Close stops delivery and releases the device. Safe to call more than once.
func (s *paStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.stream.Stop()
	})
	return nil
}
