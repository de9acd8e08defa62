// Package config loads and persists the blowsense configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the on-disk configuration. Sensitivity and the spectrum
// settings are fixed per capture session; changing them restarts the
// session.
type Config struct {
	Sensitivity float64        `json:"sensitivity" validate:"gt=0,lte=1"`
	CooldownMs  int            `json:"cooldown_ms" validate:"gt=0"`
	IntervalMs  int            `json:"interval_ms" validate:"gt=0"`
	Audio       AudioConfig    `json:"audio"`
	Spectrum    SpectrumConfig `json:"spectrum"`
	Diag        DiagConfig     `json:"diag"`
	LogLevel    string         `json:"log_level" validate:"oneof=trace debug info warn error"`
}

type AudioConfig struct {
	DeviceID   string `json:"device_id"` // empty = default input device
	SampleRate int    `json:"sample_rate" validate:"gt=0"`
}

type SpectrumConfig struct {
	FFTSize   int     `json:"fft_size" validate:"gte=64"`
	Smoothing float64 `json:"smoothing" validate:"gte=0,lt=1"`
}

type DiagConfig struct {
	ListenAddr string `json:"listen_addr"` // empty = diagnostics server disabled
}

var validate = validator.New()

// Load reads the config from disk or returns defaults.
func Load() (*Config, error) {
	path := configPath()

	cfg := &Config{
		Sensitivity: 0.3,
		CooldownMs:  1500,
		IntervalMs:  50,
		Audio: AudioConfig{
			DeviceID:   "",
			SampleRate: 44100,
		},
		Spectrum: SpectrumConfig{
			FFTSize:   512,
			Smoothing: 0.8,
		},
		LogLevel: "info",
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges beyond what JSON decoding enforces.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Spectrum.FFTSize&(c.Spectrum.FFTSize-1) != 0 {
		return fmt.Errorf("invalid config: fft_size %d is not a power of two", c.Spectrum.FFTSize)
	}
	return nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	path := configPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Cooldown returns the debounce cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// Interval returns the analysis tick interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// configPath returns the platform-specific config file path.
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "blowsense", "config.json")
}
