// Package spectrum provides magnitude-spectrum frames, the pull interface
// the capture session polls, and the per-frame feature extraction used by
// blow classification.
//
// The package does not implement the frequency transform for the session
// core; the core only sees Source. A reference Source backed by a real FFT
// is provided for wiring up a live microphone stream.
package spectrum

// Frame is one magnitude spectrum: a fixed number of amplitude samples,
// each scaled to [0,255]. Frames are reused between ticks and must not be
// retained after feature extraction.
type Frame []byte

// Source supplies the current magnitude spectrum on demand.
type Source interface {
	// Bins returns the number of samples per frame. Fixed for the life
	// of the source.
	Bins() int

	// Fill copies the current magnitude spectrum into dst. len(dst) must
	// equal Bins().
	Fill(dst Frame) error

	// Close releases the source. Safe to call more than once.
	Close() error
}
