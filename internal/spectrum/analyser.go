package spectrum

import (
	"fmt"
	"math"
	"sync"

	"github.com/madelynnblue/go-dsp/fft"
	"github.com/madelynnblue/go-dsp/window"
)

const (
	// DefaultFFTSize yields 256-bin frames.
	DefaultFFTSize = 512

	// DefaultSmoothing is the exponential smoothing applied between
	// successive spectra. Higher = slower-moving spectrum.
	DefaultSmoothing = 0.8

	// Magnitudes are mapped from this dB range onto [0,255]. Values
	// outside the range clamp.
	minDecibels = -100.0
	maxDecibels = -30.0
)

// Config holds the fixed per-session analyser settings.
type Config struct {
	FFTSize   int     // power of two >= 2*MinBins
	Smoothing float64 // [0,1)
}

// DefaultConfig returns the standard analyser configuration.
func DefaultConfig() Config {
	return Config{FFTSize: DefaultFFTSize, Smoothing: DefaultSmoothing}
}

func (c Config) validate() error {
	if c.FFTSize < 2*MinBins || c.FFTSize&(c.FFTSize-1) != 0 {
		return fmt.Errorf("spectrum: fft size %d must be a power of two >= %d", c.FFTSize, 2*MinBins)
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		return fmt.Errorf("spectrum: smoothing %v out of [0,1)", c.Smoothing)
	}
	return nil
}

// Analyser converts time-domain samples into smoothed byte-scaled magnitude
// spectra. Feed and Fill are safe for concurrent use.
type Analyser struct {
	fftSize   int
	smoothing float64
	win       []float64

	mu       sync.Mutex
	buf      []float64 // last fftSize samples, oldest first
	smoothed []float64 // exponentially smoothed magnitudes, one per bin
}

// NewAnalyser returns an analyser producing cfg.FFTSize/2 bins per frame.
func NewAnalyser(cfg Config) (*Analyser, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Analyser{
		fftSize:   cfg.FFTSize,
		smoothing: cfg.Smoothing,
		win:       window.Blackman(cfg.FFTSize),
		buf:       make([]float64, cfg.FFTSize),
		smoothed:  make([]float64, cfg.FFTSize/2),
	}, nil
}

// Bins returns the number of samples per frame.
func (a *Analyser) Bins() int { return a.fftSize / 2 }

// Feed appends time-domain samples, keeping the most recent fftSize.
func (a *Analyser) Feed(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range samples {
		a.buf = append(a.buf[1:], float64(s))
	}
}

// Fill computes the current smoothed magnitude spectrum into dst.
func (a *Analyser) Fill(dst Frame) error {
	if len(dst) != a.Bins() {
		return fmt.Errorf("spectrum: frame size %d, want %d", len(dst), a.Bins())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	windowed := make([]float64, a.fftSize)
	for i, s := range a.buf {
		windowed[i] = s * a.win[i]
	}
	bins := fft.FFTReal(windowed)

	scale := 1 / float64(a.fftSize)
	for i := 0; i < a.Bins(); i++ {
		mag := cmplxAbs(bins[i]) * scale
		a.smoothed[i] = a.smoothing*a.smoothed[i] + (1-a.smoothing)*mag
		dst[i] = toByteScale(a.smoothed[i])
	}
	return nil
}

// Close implements Source. The analyser holds no external resources.
func (a *Analyser) Close() error { return nil }

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// toByteScale maps a linear magnitude onto [0,255] across the configured
// dB range, matching the amplitude scale the classifier thresholds assume.
func toByteScale(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v)
	}
}
