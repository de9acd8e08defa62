package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petems/blowsense/internal/detect"
	"github.com/petems/blowsense/internal/spectrum"
	"github.com/rs/zerolog"
)

// State is the capture session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateActive
	StateDenied
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateActive:
		return "active"
	case StateDenied:
		return "denied"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Permission is the tri-state microphone permission: unknown while no
// request has completed, then granted or denied.
type Permission int

const (
	PermissionUnknown Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Config wires a Manager. Provider and NewSource are required; everything
// else has defaults.
type Config struct {
	Provider     Provider
	NewSource    SourceFunc
	NewScheduler SchedulerFunc // defaults to NewIntervalScheduler(DefaultInterval)
	Sensitivity  float64       // (0,1]; defaults to detect.DefaultSensitivity
	Cooldown     time.Duration // defaults to detect.DefaultCooldown
	OnBlow       func()
	OnRecord     func(detect.Record) // optional diagnostic sink
	Logger       zerolog.Logger
}

// Manager owns at most one live capture session: the device stream, the
// spectrum source, the scheduler, and the per-session classification carry
// state. It is the only component touching device resources.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	enabled bool
	state   State
	perm    Permission
	gen     uint64
	cur     *capture
}

// capture holds the resources of one session. release is idempotent and
// safe on partially built captures.
type capture struct {
	cancel      context.CancelFunc
	stream      Stream
	source      spectrum.Source
	sched       Scheduler
	releaseOnce sync.Once
}

func (c *capture) release() {
	c.releaseOnce.Do(func() {
		if c.sched != nil {
			c.sched.Stop()
		}
		if c.source != nil {
			_ = c.source.Close()
		}
		if c.stream != nil {
			_ = c.stream.Close()
		}
	})
}

// New returns a Manager in the idle state.
func New(cfg Config) (*Manager, error) {
	if cfg.Provider == nil {
		return nil, errors.New("session: Provider is required")
	}
	if cfg.NewSource == nil {
		return nil, errors.New("session: NewSource is required")
	}
	if cfg.NewScheduler == nil {
		cfg.NewScheduler = NewIntervalScheduler(DefaultInterval)
	}
	if cfg.Sensitivity == 0 {
		cfg.Sensitivity = detect.DefaultSensitivity
	}
	if cfg.Sensitivity <= 0 || cfg.Sensitivity > 1 {
		return nil, fmt.Errorf("session: sensitivity %v out of (0,1]", cfg.Sensitivity)
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = detect.DefaultCooldown
	}
	return &Manager{cfg: cfg, state: StateIdle}, nil
}

// SetEnabled starts or stops blow detection. Enabling while a session is
// active or pending is a no-op; disabling cancels any in-flight permission
// request and releases all session resources. Safe to call repeatedly and
// concurrently.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = enabled
	if enabled {
		m.startLocked()
	} else {
		m.stopLocked()
	}
}

// Close is SetEnabled(false), for defer-friendly teardown.
func (m *Manager) Close() error {
	m.SetEnabled(false)
	return nil
}

// Enabled reports the desired state set by the host.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Permission returns the current microphone permission state.
func (m *Manager) Permission() Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perm
}

// Sensitivity returns the configured classification sensitivity.
func (m *Manager) Sensitivity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Sensitivity
}

// SetSensitivity changes the classification sensitivity. Sensitivity is
// fixed for the life of a session, so an enabled manager restarts its
// session with fresh carry state.
func (m *Manager) SetSensitivity(s float64) error {
	if s <= 0 || s > 1 {
		return fmt.Errorf("session: sensitivity %v out of (0,1]", s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg.Sensitivity = s
	if m.enabled {
		m.stopLocked()
		m.startLocked()
	}
	return nil
}

// startLocked begins a new session unless one is already active or pending.
func (m *Manager) startLocked() {
	if m.cur != nil {
		return
	}

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	c := &capture{cancel: cancel}
	m.cur = c
	m.state = StateRequesting
	m.perm = PermissionUnknown

	m.cfg.Logger.Debug().Msg("requesting microphone access")
	go m.acquire(ctx, gen, c)
}

// stopLocked tears the current session down. Bumping the generation counter
// invalidates any in-flight acquisition, so a grant arriving later is
// discarded and released by acquire.
func (m *Manager) stopLocked() {
	m.gen++
	c := m.cur
	m.cur = nil
	if c == nil {
		return
	}

	c.cancel()
	c.release()
	m.state = StateStopped
	m.cfg.Logger.Debug().Msg("capture session stopped")
}

// acquire completes the asynchronous device acquisition and, on success,
// wires the stream into a spectrum source and starts the tick loop.
func (m *Manager) acquire(ctx context.Context, gen uint64, c *capture) {
	stream, err := m.cfg.Provider.RequestAccess(ctx)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		// Disabled (or superseded) while the request was in flight:
		// a late grant must not start a stale session or leak.
		if stream != nil {
			_ = stream.Close()
		}
		return
	}

	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			m.cfg.Logger.Info().Msg("microphone access denied")
		} else {
			m.cfg.Logger.Error().Err(err).Msg("microphone acquisition failed")
		}
		m.denyLocked(c)
		m.mu.Unlock()
		return
	}

	source, err := m.cfg.NewSource(stream)
	if err != nil {
		m.cfg.Logger.Error().Err(err).Msg("spectrum source setup failed")
		m.denyLocked(c)
		m.mu.Unlock()
		_ = stream.Close()
		return
	}

	extractor, err := spectrum.NewExtractor(source.Bins())
	if err != nil {
		m.cfg.Logger.Error().Err(err).Msg("feature extractor setup failed")
		m.denyLocked(c)
		m.mu.Unlock()
		_ = source.Close()
		_ = stream.Close()
		return
	}

	c.stream = stream
	c.source = source
	c.sched = m.cfg.NewScheduler()
	m.perm = PermissionGranted
	m.state = StateActive
	sensitivity := m.cfg.Sensitivity
	cooldown := m.cfg.Cooldown
	m.mu.Unlock()

	m.cfg.Logger.Info().
		Int("bins", source.Bins()).
		Float64("sensitivity", sensitivity).
		Msg("capture session active")

	go m.run(ctx, gen, c, extractor, sensitivity, cooldown)
}

// denyLocked records a failed acquisition. Setup failures are treated the
// same as an explicit denial: the feature stays inert, nothing propagates.
func (m *Manager) denyLocked(c *capture) {
	m.perm = PermissionDenied
	m.state = StateDenied
	m.cur = nil
	c.cancel()
	c.release()
}

// run is the per-session tick loop. Ticks execute strictly sequentially;
// carry state lives in this goroutine only. The loop exits on cancellation
// or on a spectrum pull error.
func (m *Manager) run(ctx context.Context, gen uint64, c *capture, extractor *spectrum.Extractor, sensitivity float64, cooldown time.Duration) {
	gate := detect.NewGate(cooldown)
	frame := make(spectrum.Frame, extractor.Bins())
	previousVolume := 0.0

	for {
		select {
		case <-ctx.Done():
			return
		case now, ok := <-c.sched.Ticks():
			if !ok {
				return
			}
			if err := c.source.Fill(frame); err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				// No recovery for a dead source: stop the session
				// and wait for the host to re-enable.
				m.cfg.Logger.Error().Err(err).Msg("spectrum pull failed, stopping capture")
				m.fail(gen)
				return
			}

			features := extractor.Extract(frame)
			isBlowing, volumeChange := detect.Classify(features, previousVolume, sensitivity)
			previousVolume = features.AvgVolume

			if !gate.Offer(isBlowing, now) {
				continue
			}

			m.cfg.Logger.Debug().
				Float64("low_avg", features.LowAvg).
				Float64("mid_avg", features.MidAvg).
				Float64("high_avg", features.HighAvg).
				Float64("avg_volume", features.AvgVolume).
				Int("peak_count", features.PeakCount).
				Float64("volume_change", volumeChange).
				Msg("blow detected")

			if m.cfg.OnBlow != nil {
				m.cfg.OnBlow()
			}
			if m.cfg.OnRecord != nil {
				m.cfg.OnRecord(detect.NewRecord(now, features, volumeChange, sensitivity))
			}
		}
	}
}

// fail releases the session after a mid-session error, unless a newer
// generation has already replaced it.
func (m *Manager) fail(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	c := m.cur
	m.cur = nil
	m.state = StateStopped
	m.mu.Unlock()

	if c != nil {
		c.cancel()
		c.release()
	}
}
