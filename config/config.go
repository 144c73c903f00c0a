// Package config loads process settings from environment and line
// definitions from YAML files.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix of environment variables.
const Prefix = "CONVEYOR"

// Settings holds process configuration.
type Settings struct {
	// Capacity of queues between stages.
	Capacity     int           `default:"8"`
	PollInterval time.Duration `split_words:"true" default:"100ms"`
	// FPS is the frame rate of the camera in live mode.
	FPS      float64 `envconfig:"FPS" default:"30"`
	LogLevel string  `split_words:"true" default:"info"`
}

// Load reads settings from environment.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default returns default settings.
func Default() *Settings {
	return &Settings{
		Capacity:     8,
		PollInterval: 100 * time.Millisecond,
		FPS:          30,
		LogLevel:     "info",
	}
}

// Validate checks the settings values.
func (s *Settings) Validate() error {
	if s.Capacity < 1 {
		return fmt.Errorf("capacity must be positive: %d", s.Capacity)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %v", s.PollInterval)
	}
	if s.FPS <= 0 {
		return fmt.Errorf("fps must be positive: %v", s.FPS)
	}
	return nil
}
