package spectrum

import (
	"math"
	"testing"
	"time"
)

func TestNewAnalyserDefaultConfig(t *testing.T) {
	a, err := NewAnalyser(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if a.Bins() != DefaultFFTSize/2 {
		t.Errorf("Bins = %d, want %d", a.Bins(), DefaultFFTSize/2)
	}
}

func TestNewAnalyserRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{FFTSize: 500, Smoothing: 0.8},  // not a power of two
		{FFTSize: 32, Smoothing: 0.8},   // too few bins
		{FFTSize: 512, Smoothing: 1.0},  // smoothing out of range
		{FFTSize: 512, Smoothing: -0.1}, // smoothing out of range
	}
	for _, cfg := range cases {
		if _, err := NewAnalyser(cfg); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}

func TestFillRejectsWrongFrameSize(t *testing.T) {
	a, _ := NewAnalyser(Config{FFTSize: 128, Smoothing: 0.8})
	if err := a.Fill(make(Frame, 10)); err == nil {
		t.Fatal("expected error for undersized frame")
	}
}

func TestFillSilenceIsZero(t *testing.T) {
	a, _ := NewAnalyser(Config{FFTSize: 128, Smoothing: 0.8})
	frame := make(Frame, a.Bins())
	if err := a.Fill(frame); err != nil {
		t.Fatal(err)
	}
	for i, v := range frame {
		if v != 0 {
			t.Fatalf("bin %d = %d, want 0 for silence", i, v)
		}
	}
}

func TestFillRespondsToSignal(t *testing.T) {
	// Smoothing 0 so the first spectrum is fully visible.
	a, _ := NewAnalyser(Config{FFTSize: 128, Smoothing: 0})

	samples := make([]float32, 128)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 8 * float64(i) / 128))
	}
	a.Feed(samples)

	frame := make(Frame, a.Bins())
	if err := a.Fill(frame); err != nil {
		t.Fatal(err)
	}

	var total int
	for _, v := range frame {
		total += int(v)
	}
	if total == 0 {
		t.Fatal("expected non-zero spectrum for a sine input")
	}
}

func TestStreamSourcePumpsAndCloses(t *testing.T) {
	samples := make(chan []float32, 4)
	s, err := NewStreamSource(samples, Config{FFTSize: 128, Smoothing: 0})
	if err != nil {
		t.Fatal(err)
	}

	chunk := make([]float32, 128)
	for i := range chunk {
		chunk[i] = float32(math.Sin(2 * math.Pi * 8 * float64(i) / 128))
	}
	samples <- chunk

	frame := make(Frame, s.Bins())
	var seen bool
	for i := 0; i < 100; i++ { // Poll for 1 second
		if err := s.Fill(frame); err != nil {
			t.Fatal(err)
		}
		total := 0
		for _, v := range frame {
			total += int(v)
		}
		if total > 0 {
			seen = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !seen {
		t.Fatal("stream source never reflected the fed samples")
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal("second Close should be a no-op")
	}
}
