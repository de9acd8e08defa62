package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petems/blowsense/internal/detect"
	"github.com/petems/blowsense/internal/spectrum"
	"github.com/rs/zerolog"
)

// Mock implementations for testing

type grantResult struct {
	stream Stream
	err    error
}

// mockProvider scripts RequestAccess results through a channel, so tests
// control exactly when the asynchronous grant arrives. Like a real
// permission prompt, it resolves on its own schedule and ignores
// cancellation: the manager must discard late grants itself.
type mockProvider struct {
	grants chan grantResult
}

func newMockProvider() *mockProvider {
	return &mockProvider{grants: make(chan grantResult, 4)}
}

func (p *mockProvider) RequestAccess(ctx context.Context) (Stream, error) {
	r := <-p.grants
	return r.stream, r.err
}

type mockStream struct {
	ch     chan []float32
	mu     sync.Mutex
	closed bool
}

func newMockStream() *mockStream {
	return &mockStream{ch: make(chan []float32)}
}

func (s *mockStream) Samples() <-chan []float32 { return s.ch }

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// mockSource serves whatever frame the test last staged and counts pulls,
// so tests can wait until a tick has actually been processed.
type mockSource struct {
	bins   int
	mu     sync.Mutex
	frame  spectrum.Frame
	err    error
	closed bool
	fills  int
}

func newMockSource(bins int) *mockSource {
	return &mockSource{bins: bins, frame: make(spectrum.Frame, bins)}
}

func (s *mockSource) Bins() int { return s.bins }

func (s *mockSource) Fill(dst spectrum.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills++
	if s.err != nil {
		return s.err
	}
	copy(dst, s.frame)
	return nil
}

func (s *mockSource) fillCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fills
}

func (s *mockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *mockSource) stage(value byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.frame {
		s.frame[i] = value
	}
}

func (s *mockSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type mockScheduler struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{ch: make(chan time.Time, 16)}
}

func (s *mockScheduler) Ticks() <-chan time.Time { return s.ch }

func (s *mockScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *mockScheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *mockScheduler) tick(at time.Time) { s.ch <- at }

// harness bundles a Manager with its mocks.
type harness struct {
	manager  *Manager
	provider *mockProvider
	blows    *atomic.Int64

	mu      sync.Mutex
	sources []*mockSource
	scheds  []*mockScheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		provider: newMockProvider(),
		blows:    &atomic.Int64{},
	}

	m, err := New(Config{
		Provider: h.provider,
		NewSource: func(Stream) (spectrum.Source, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			src := newMockSource(64)
			h.sources = append(h.sources, src)
			return src, nil
		},
		NewScheduler: func() Scheduler {
			h.mu.Lock()
			defer h.mu.Unlock()
			sched := newMockScheduler()
			h.scheds = append(h.scheds, sched)
			return sched
		},
		Sensitivity: 0.3,
		Cooldown:    detect.DefaultCooldown,
		OnBlow:      func() { h.blows.Add(1) },
		Logger:      zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	h.manager = m
	return h
}

func (h *harness) source(i int) *mockSource {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sources[i]
}

func (h *harness) scheduler(i int) *mockScheduler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scheds[i]
}

func (h *harness) sessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sources)
}

// tickAndWait delivers one tick to session i and blocks until the run loop
// has pulled a frame for it, so frames staged afterwards cannot be consumed
// by this tick.
func (h *harness) tickAndWait(t *testing.T, i int, at time.Time) {
	t.Helper()
	before := h.source(i).fillCount()
	h.scheduler(i).tick(at)
	waitFor(t, "tick to be processed", func() bool { return h.source(i).fillCount() > before })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 100; i++ { // Poll for 1 second
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEnableActivatesAndDetectsBlow(t *testing.T) {
	h := newHarness(t)
	stream := newMockStream()
	h.provider.grants <- grantResult{stream: stream}

	h.manager.SetEnabled(true)
	waitFor(t, "active state", func() bool { return h.manager.State() == StateActive })

	if h.manager.Permission() != PermissionGranted {
		t.Fatalf("Permission = %v, want granted", h.manager.Permission())
	}

	// A loud broadband frame from silence: classifies as a blow.
	h.source(0).stage(150)
	start := time.Now()
	h.tickAndWait(t, 0, start)
	waitFor(t, "blow callback", func() bool { return h.blows.Load() == 1 })

	// Sustained loudness has no onset; no further fires.
	h.tickAndWait(t, 0, start.Add(2*time.Second))
	if got := h.blows.Load(); got != 1 {
		t.Fatalf("blow count = %d, want 1 (no onset on sustained volume)", got)
	}

	// Drop to silence, then a fresh onset outside the cooldown fires again.
	h.source(0).stage(0)
	h.tickAndWait(t, 0, start.Add(3*time.Second))
	h.source(0).stage(150)
	h.tickAndWait(t, 0, start.Add(4*time.Second))
	waitFor(t, "second blow", func() bool { return h.blows.Load() == 2 })
}

func TestCooldownSuppressesRepeatFires(t *testing.T) {
	h := newHarness(t)
	stream := newMockStream()
	h.provider.grants <- grantResult{stream: stream}

	h.manager.SetEnabled(true)
	waitFor(t, "active state", func() bool { return h.manager.State() == StateActive })

	start := time.Now()

	// Two onsets 500ms apart: only the first fires.
	h.source(0).stage(150)
	h.tickAndWait(t, 0, start)
	waitFor(t, "first blow", func() bool { return h.blows.Load() == 1 })

	h.source(0).stage(0)
	h.tickAndWait(t, 0, start.Add(250*time.Millisecond))
	h.source(0).stage(150)
	h.tickAndWait(t, 0, start.Add(500*time.Millisecond))
	if got := h.blows.Load(); got != 1 {
		t.Fatalf("blow count = %d, want 1 inside cooldown", got)
	}

	// A third onset 1600ms after the first fires again.
	h.source(0).stage(0)
	h.tickAndWait(t, 0, start.Add(1100*time.Millisecond))
	h.source(0).stage(150)
	h.tickAndWait(t, 0, start.Add(1600*time.Millisecond))
	waitFor(t, "second blow", func() bool { return h.blows.Load() == 2 })
}

func TestDisableStopsTicksAndReleases(t *testing.T) {
	h := newHarness(t)
	stream := newMockStream()
	h.provider.grants <- grantResult{stream: stream}

	h.manager.SetEnabled(true)
	waitFor(t, "active state", func() bool { return h.manager.State() == StateActive })

	h.manager.SetEnabled(false)

	if h.manager.State() != StateStopped {
		t.Fatalf("State = %v, want stopped", h.manager.State())
	}
	if !stream.isClosed() {
		t.Fatal("stream should be released on disable")
	}
	if !h.source(0).isClosed() {
		t.Fatal("spectrum source should be released on disable")
	}
	if !h.scheduler(0).isStopped() {
		t.Fatal("scheduler should be stopped on disable")
	}

	// Disable again: teardown is idempotent.
	h.manager.SetEnabled(false)
}

func TestReenableStartsFreshSession(t *testing.T) {
	h := newHarness(t)
	h.provider.grants <- grantResult{stream: newMockStream()}

	h.manager.SetEnabled(true)
	waitFor(t, "active state", func() bool { return h.manager.State() == StateActive })

	// Leave the first session with high carry volume and a recent fire.
	h.source(0).stage(150)
	now := time.Now()
	h.tickAndWait(t, 0, now)
	waitFor(t, "first blow", func() bool { return h.blows.Load() == 1 })

	h.manager.SetEnabled(false)

	h.provider.grants <- grantResult{stream: newMockStream()}
	h.manager.SetEnabled(true)
	waitFor(t, "second session", func() bool { return h.manager.State() == StateActive && h.sessionCount() == 2 })

	// With previousVolume and the gate both reset, an immediate loud frame
	// fires even though the last fire was moments ago.
	h.source(1).stage(150)
	h.scheduler(1).tick(now.Add(10 * time.Millisecond))
	waitFor(t, "fresh-session blow", func() bool { return h.blows.Load() == 2 })
}

func TestLateGrantAfterDisableIsDiscarded(t *testing.T) {
	h := newHarness(t)

	h.manager.SetEnabled(true)
	waitFor(t, "requesting state", func() bool { return h.manager.State() == StateRequesting })

	if h.manager.Permission() != PermissionUnknown {
		t.Fatalf("Permission = %v, want unknown while pending", h.manager.Permission())
	}

	h.manager.SetEnabled(false)

	// The grant arrives after disable: it must not start a session and the
	// stream must be released immediately.
	stream := newMockStream()
	h.provider.grants <- grantResult{stream: stream}

	waitFor(t, "late stream release", stream.isClosed)
	if h.manager.State() == StateActive {
		t.Fatal("late grant must not activate a session")
	}
	if h.sessionCount() != 0 {
		t.Fatal("late grant must not build a spectrum source")
	}
}

func TestDeniedPermissionIsInert(t *testing.T) {
	h := newHarness(t)
	h.provider.grants <- grantResult{err: ErrPermissionDenied}

	h.manager.SetEnabled(true)
	waitFor(t, "denied state", func() bool { return h.manager.State() == StateDenied })

	if h.manager.Permission() != PermissionDenied {
		t.Fatalf("Permission = %v, want denied", h.manager.Permission())
	}
	if h.sessionCount() != 0 {
		t.Fatal("denied acquisition must not start the pipeline")
	}
	if h.blows.Load() != 0 {
		t.Fatal("no event may ever fire without a session")
	}
}

func TestSourceErrorStopsSession(t *testing.T) {
	h := newHarness(t)
	stream := newMockStream()
	h.provider.grants <- grantResult{stream: stream}

	h.manager.SetEnabled(true)
	waitFor(t, "active state", func() bool { return h.manager.State() == StateActive })

	h.source(0).fail(context.DeadlineExceeded)
	h.scheduler(0).tick(time.Now())

	waitFor(t, "stopped state", func() bool { return h.manager.State() == StateStopped })
	waitFor(t, "stream release", stream.isClosed)
}

func TestSetSensitivityRestartsSession(t *testing.T) {
	h := newHarness(t)
	h.provider.grants <- grantResult{stream: newMockStream()}

	h.manager.SetEnabled(true)
	waitFor(t, "active state", func() bool { return h.manager.State() == StateActive })

	h.provider.grants <- grantResult{stream: newMockStream()}
	if err := h.manager.SetSensitivity(0.5); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "restarted session", func() bool { return h.manager.State() == StateActive && h.sessionCount() == 2 })
	if !h.source(0).isClosed() {
		t.Fatal("old session's source should be released on restart")
	}
	if h.manager.Sensitivity() != 0.5 {
		t.Fatalf("Sensitivity = %v, want 0.5", h.manager.Sensitivity())
	}
}

func TestSetSensitivityRejectsOutOfRange(t *testing.T) {
	h := newHarness(t)
	for _, s := range []float64{0, -0.1, 1.01} {
		if err := h.manager.SetSensitivity(s); err == nil {
			t.Errorf("expected error for sensitivity %v", s)
		}
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without a provider")
	}

	if _, err := New(Config{
		Provider:    newMockProvider(),
		NewSource:   func(Stream) (spectrum.Source, error) { return newMockSource(64), nil },
		Sensitivity: 1.5,
	}); err == nil {
		t.Fatal("expected error for out-of-range sensitivity")
	}
}
