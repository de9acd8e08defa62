// Package tray is the systray host for the blow detector: an
// enable/disable toggle, a sensitivity menu, permission state and a fire
// counter.
package tray

import (
	"context"
	"fmt"
	"time"

	"github.com/getlantern/systray"
	"github.com/petems/blowsense/internal/config"
	"github.com/petems/blowsense/internal/session"
	"github.com/rs/zerolog"
)

var sensitivityChoices = []float64{0.1, 0.2, 0.3, 0.5, 0.7, 0.9}

type UI struct {
	detector *session.Manager
	cfg      *config.Config
	version  string
	commit   string
	log      zerolog.Logger

	blows int

	// Menu items
	mEnabled    *systray.MenuItem
	mPermission *systray.MenuItem
	mCounter    *systray.MenuItem
}

func New(detector *session.Manager, cfg *config.Config, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		detector: detector,
		cfg:      cfg,
		version:  version,
		commit:   commit,
		log:      log,
	}
}

// Run starts the tray loop. MUST run on the main thread.
func (u *UI) Run(ctx context.Context) error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

// NotifyBlow updates the counter after a fired event.
func (u *UI) NotifyBlow() {
	u.blows++
	if u.mCounter != nil {
		u.mCounter.SetTitle(fmt.Sprintf("Blows detected: %d", u.blows))
	}
}

func (u *UI) onReady() {
	u.updateStatus()
	systray.SetTooltip("Microphone blow detection")

	u.mEnabled = systray.AddMenuItemCheckbox("Detection enabled", "Start or stop listening", u.detector.Enabled())
	systray.AddSeparator()

	u.mPermission = systray.AddMenuItem("Microphone: unknown", "Current permission state")
	u.mPermission.Disable()
	u.mCounter = systray.AddMenuItem("Blows detected: 0", "Events fired this run")
	u.mCounter.Disable()
	systray.AddSeparator()

	mSensitivity := systray.AddMenuItem("Sensitivity", "Restarting changes take effect immediately")
	u.buildSensitivityMenu(mSensitivity)

	systray.AddSeparator()
	mAbout := systray.AddMenuItem("About", "About blowsense")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	go u.handleEvents(mAbout, mQuit)
	go u.pollState()
}

func (u *UI) handleEvents(mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mEnabled.ClickedCh:
			u.toggleEnabled()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// pollState mirrors detector state into the menu. Permission resolves
// asynchronously, so the menu is refreshed rather than event-driven.
func (u *UI) pollState() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		u.mPermission.SetTitle(fmt.Sprintf("Microphone: %s", u.detector.Permission()))
		u.updateStatus()
	}
}

func (u *UI) buildSensitivityMenu(parent *systray.MenuItem) {
	items := make(map[float64]*systray.MenuItem)

	for _, s := range sensitivityChoices {
		item := parent.AddSubMenuItem(fmt.Sprintf("%.1f", s), "")
		if s == u.cfg.Sensitivity {
			item.Check()
		}
		items[s] = item

		go func(value float64, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				for v, itm := range items {
					if v != value {
						itm.Uncheck()
					}
				}
				menuItem.Check()

				if err := u.detector.SetSensitivity(value); err != nil {
					u.log.Error().Err(err).Msg("Failed to set sensitivity")
					continue
				}
				u.cfg.Sensitivity = value
				u.cfg.Save()
				u.log.Info().Float64("sensitivity", value).Msg("Changed sensitivity")
			}
		}(s, item)
	}
}

func (u *UI) toggleEnabled() {
	enabled := !u.detector.Enabled()
	u.detector.SetEnabled(enabled)
	if enabled {
		u.mEnabled.Check()
		u.log.Info().Msg("Enabled blow detection")
	} else {
		u.mEnabled.Uncheck()
		u.log.Info().Msg("Disabled blow detection")
	}
	u.updateStatus()
}

func (u *UI) showAbout() {
	fmt.Printf("blowsense %s (%s)\nMicrophone blow detection\n", u.version, u.commit)
}

func (u *UI) onExit() {
	u.detector.Close()
}

// updateStatus sets the tray title with an emoji for the session state.
func (u *UI) updateStatus() {
	systray.SetTitle(fmt.Sprintf("🌬️ %s", emojiForState(u.detector.State())))
}

// emojiForState returns the appropriate status emoji.
func emojiForState(state session.State) string {
	switch state {
	case session.StateActive:
		return "🟢" // Green - listening
	case session.StateRequesting:
		return "🟡" // Yellow - awaiting permission
	case session.StateDenied:
		return "⚪️" // White - permission denied
	default:
		return "⚫️" // Black - idle/stopped
	}
}
