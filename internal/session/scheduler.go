package session

import "time"

// DefaultInterval is the default analysis tick interval.
const DefaultInterval = 50 * time.Millisecond

type intervalScheduler struct {
	ticker *time.Ticker
}

// NewIntervalScheduler returns a SchedulerFunc producing wall-clock tickers
// at the given interval; d <= 0 selects DefaultInterval.
func NewIntervalScheduler(d time.Duration) SchedulerFunc {
	if d <= 0 {
		d = DefaultInterval
	}
	return func() Scheduler {
		return &intervalScheduler{ticker: time.NewTicker(d)}
	}
}

func (s *intervalScheduler) Ticks() <-chan time.Time { return s.ticker.C }

func (s *intervalScheduler) Stop() { s.ticker.Stop() }
