// Package session owns the capture session lifecycle: acquiring the
// microphone stream, wiring it into a spectrum source, and running the
// periodic extract/classify/gate loop that emits blow events.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/petems/blowsense/internal/spectrum"
)

// ErrPermissionDenied is returned by a Provider when the platform or the
// user refuses microphone access.
var ErrPermissionDenied = errors.New("microphone access denied")

// Stream is a live audio input delivering chunks of mono samples.
type Stream interface {
	// Samples is the channel of sample chunks. It may stop delivering
	// once the stream is closed.
	Samples() <-chan []float32

	// Close releases the underlying device. Safe to call more than once.
	Close() error
}

// Provider acquires microphone streams. RequestAccess may block for an
// unbounded time awaiting a user or platform permission decision; it must
// honour ctx cancellation.
type Provider interface {
	RequestAccess(ctx context.Context) (Stream, error)
}

// SourceFunc builds the spectrum source for a granted stream.
type SourceFunc func(Stream) (spectrum.Source, error)

// Scheduler delivers the periodic "ready for next tick" signal. The tick
// cadence is owned by the scheduler and may vary; the session derives all
// timing from tick timestamps, never from tick counts.
type Scheduler interface {
	Ticks() <-chan time.Time
	Stop()
}

// SchedulerFunc creates a fresh scheduler for one session.
type SchedulerFunc func() Scheduler
