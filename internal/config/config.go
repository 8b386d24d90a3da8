// Package config loads service configuration: built-in defaults, then an optional
// YAML file, then CORRIDOR_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"

	"github.com/star/corridor/internal/collision"
	"github.com/star/corridor/internal/control"
	"github.com/star/corridor/internal/logging"
	"github.com/star/corridor/internal/route"
)

// Clock modes.
const (
	ClockWall      = "wall"
	ClockSimulated = "simulated"
)

type Config struct {
	HTTP     HTTP            `yaml:"http"`
	Auth     Auth            `yaml:"auth"`
	Log      logging.Options `yaml:"log"`
	Control  Control         `yaml:"control"`
	Clock    Clock           `yaml:"clock"`
	History  History         `yaml:"history"`
	Forecast Forecast        `yaml:"forecast"`
	Stream   Stream          `yaml:"stream"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Auth struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	// PublicPaths are served without a token in addition to the health and metrics endpoints.
	PublicPaths []string `yaml:"public_paths"`
}

type Control struct {
	Bounds               control.Bounds `yaml:"bounds"`
	Step                 time.Duration  `yaml:"step"`
	Separation           float64        `yaml:"separation"`
	Epsilon              float64        `yaml:"epsilon"`
	Endurance            time.Duration  `yaml:"endurance"`
	Horizon              time.Time      `yaml:"horizon"`
	MaxShiftsPerAirplane int            `yaml:"max_shifts_per_airplane"`
}

// CenterConfig converts the section into a control.Config.
func (c Control) CenterConfig() control.Config {
	return control.Config{
		Bounds: c.Bounds,
		Step:   c.Step,
		Detector: collision.Detector{
			Separation: c.Separation,
			Epsilon:    c.Epsilon,
			Endurance:  c.Endurance,
			Horizon:    c.Horizon,
		},
		MaxShiftsPerAirplane: c.MaxShiftsPerAirplane,
	}
}

type Clock struct {
	Mode string `yaml:"mode"`
	// Start seeds the simulated clock. Zero means process start.
	Start time.Time `yaml:"start"`
	// Step is how far the simulated clock moves per tick.
	Step time.Duration `yaml:"step"`
	// Interval is the wall-clock time between ticks.
	Interval time.Duration `yaml:"interval"`
}

type History struct {
	Capacity int `yaml:"capacity"`
}

type Forecast struct {
	Workers      int `yaml:"workers"`
	MaxPositions int `yaml:"max_positions"`
}

type Stream struct {
	MaxConcurrentPerIP int           `yaml:"max_concurrent_per_ip"`
	KeepaliveInterval  time.Duration `yaml:"keepalive_interval"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP for the
	// per-IP stream limit. Only enable behind a proxy that sets them.
	TrustProxy bool `yaml:"trust_proxy"`
}

var defaults = Config{
	HTTP: HTTP{Addr: ":8080"},
	Auth: Auth{PublicPaths: []string{"/api/v1/positions", "/api/v1/grid"}},
	Log: logging.Options{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	},
	Control: Control{
		Bounds:               control.Bounds{Start: 0, Stop: 100000, Samples: 101},
		Step:                 control.DefaultStep,
		Epsilon:              route.DefaultEpsilon,
		Endurance:            30 * time.Minute,
		MaxShiftsPerAirplane: 3600,
	},
	Clock: Clock{
		Mode:     ClockWall,
		Step:     time.Second,
		Interval: time.Second,
	},
	History:  History{Capacity: 600},
	Forecast: Forecast{MaxPositions: 500_000},
	Stream: Stream{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
		WriteTimeout:       10 * time.Second,
	},
}

// Default returns a fresh copy of the built-in defaults.
func Default() Config {
	return deepcopy.Copy(defaults).(Config)
}

// Load builds the configuration from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string, logger *slog.Logger) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
		logger.Info("config file loaded", "path", path)
	}

	if err := applyEnv(&cfg, logger); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to unmarshal yaml: %w", err)
	}
	return nil
}

// Validate checks the settings that no downstream constructor checks. Control
// settings are validated by control.New.
func (c Config) Validate() error {
	if c.Auth.Enabled && c.Auth.Token == "" {
		return errors.New("auth token is required when auth is enabled")
	}
	if c.Clock.Mode != ClockWall && c.Clock.Mode != ClockSimulated {
		return fmt.Errorf("clock mode must be %q or %q, got %q", ClockWall, ClockSimulated, c.Clock.Mode)
	}
	if c.Clock.Interval <= 0 {
		return fmt.Errorf("clock interval must be positive, got %s", c.Clock.Interval)
	}
	if c.Clock.Mode == ClockSimulated && c.Clock.Step <= 0 {
		return fmt.Errorf("clock step must be positive, got %s", c.Clock.Step)
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history capacity must be positive, got %d", c.History.Capacity)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
