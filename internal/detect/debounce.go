package detect

import "time"

// DefaultCooldown is the minimum interval between emitted blow events.
const DefaultCooldown = 1500 * time.Millisecond

// Gate suppresses repeat events inside a cooldown window. The zero last-fire
// time acts as a "never fired" sentinel, so the first blow of a session is
// never suppressed. Not safe for concurrent use; session ticks are
// sequential by construction.
type Gate struct {
	cooldown time.Duration
	lastFire time.Time
}

// NewGate returns a gate with the given cooldown; d <= 0 selects
// DefaultCooldown.
func NewGate(d time.Duration) *Gate {
	if d <= 0 {
		d = DefaultCooldown
	}
	return &Gate{cooldown: d}
}

// Offer reports whether a positive classification at now should be emitted.
// At most one emission passes per cooldown window.
func (g *Gate) Offer(isBlowing bool, now time.Time) bool {
	if !isBlowing || now.Sub(g.lastFire) <= g.cooldown {
		return false
	}
	g.lastFire = now
	return true
}

// Reset clears the last-fire time back to the never sentinel.
func (g *Gate) Reset() {
	g.lastFire = time.Time{}
}
