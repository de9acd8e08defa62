package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/petems/blowsense/internal/config"
	"github.com/petems/blowsense/internal/detect"
	"github.com/petems/blowsense/internal/device"
	"github.com/petems/blowsense/internal/diag"
	"github.com/petems/blowsense/internal/logging"
	"github.com/petems/blowsense/internal/session"
	"github.com/petems/blowsense/internal/spectrum"
	"github.com/petems/blowsense/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logging.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Microphone provider (owns the PortAudio runtime)
	provider, err := device.New(device.Options{
		DeviceID:   cfg.Audio.DeviceID,
		SampleRate: cfg.Audio.SampleRate,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer provider.Close()

	// Optional diagnostics feed for classifier tuning
	var onRecord func(detect.Record)
	if cfg.Diag.ListenAddr != "" {
		diagSrv := diag.NewServer(cfg.Diag.ListenAddr, log)
		diagSrv.Start()
		defer diagSrv.Close()
		onRecord = diagSrv.Publish
	}

	var trayUI *tray.UI

	detector, err := session.New(session.Config{
		Provider: provider,
		NewSource: func(stream session.Stream) (spectrum.Source, error) {
			return spectrum.NewStreamSource(stream.Samples(), spectrum.Config{
				FFTSize:   cfg.Spectrum.FFTSize,
				Smoothing: cfg.Spectrum.Smoothing,
			})
		},
		NewScheduler: session.NewIntervalScheduler(cfg.Interval()),
		Sensitivity:  cfg.Sensitivity,
		Cooldown:     cfg.Cooldown(),
		OnBlow: func() {
			if trayUI != nil {
				trayUI.NotifyBlow()
			}
		},
		OnRecord: onRecord,
		Logger:   log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create detector")
	}
	defer detector.Close()

	trayUI = tray.New(detector, cfg, Version, Commit, log)

	log.Info().Str("version", Version).Msg("blowsense starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		detector.Close()
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tray error")
	}
}
