package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overrides cfg from CORRIDOR_* variables. Malformed values are logged
// and the current setting kept; only auth problems are fatal.
func applyEnv(cfg *Config, logger *slog.Logger) error {
	if v := os.Getenv("CORRIDOR_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	if v := os.Getenv("CORRIDOR_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("CORRIDOR_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Auth.Enabled = enabled
	}
	if v := os.Getenv("CORRIDOR_AUTH_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv("CORRIDOR_AUTH_PUBLIC_PATHS"); v != "" {
		var paths []string
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				paths = append(paths, p)
			}
		}
		cfg.Auth.PublicPaths = paths
	}

	if v := os.Getenv("CORRIDOR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CORRIDOR_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}

	envFloat(logger, "CORRIDOR_BOUNDS_START", &cfg.Control.Bounds.Start)
	envFloat(logger, "CORRIDOR_BOUNDS_STOP", &cfg.Control.Bounds.Stop)
	envInt(logger, "CORRIDOR_BOUNDS_SAMPLES", &cfg.Control.Bounds.Samples)
	envDuration(logger, "CORRIDOR_STEP", &cfg.Control.Step)
	envFloat(logger, "CORRIDOR_SEPARATION", &cfg.Control.Separation)
	envDuration(logger, "CORRIDOR_ENDURANCE", &cfg.Control.Endurance)
	envInt(logger, "CORRIDOR_MAX_SHIFTS_PER_AIRPLANE", &cfg.Control.MaxShiftsPerAirplane)

	if v := os.Getenv("CORRIDOR_CLOCK_MODE"); v != "" {
		cfg.Clock.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("CORRIDOR_CLOCK_START"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			logger.Warn("invalid CORRIDOR_CLOCK_START value, using default", "value", v)
		} else {
			cfg.Clock.Start = t
		}
	}
	envDuration(logger, "CORRIDOR_CLOCK_STEP", &cfg.Clock.Step)
	envDuration(logger, "CORRIDOR_CLOCK_INTERVAL", &cfg.Clock.Interval)

	envInt(logger, "CORRIDOR_HISTORY_CAPACITY", &cfg.History.Capacity)
	envInt(logger, "CORRIDOR_FORECAST_WORKERS", &cfg.Forecast.Workers)
	envInt(logger, "CORRIDOR_FORECAST_MAX_POSITIONS", &cfg.Forecast.MaxPositions)

	envInt(logger, "CORRIDOR_STREAM_MAX_CONCURRENT", &cfg.Stream.MaxConcurrentPerIP)
	envDuration(logger, "CORRIDOR_STREAM_KEEPALIVE_INTERVAL", &cfg.Stream.KeepaliveInterval)
	envDuration(logger, "CORRIDOR_STREAM_WRITE_TIMEOUT", &cfg.Stream.WriteTimeout)
	envBool(logger, "CORRIDOR_STREAM_TRUST_PROXY", &cfg.Stream.TrustProxy)

	return nil
}

func envInt(logger *slog.Logger, key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = n
}

func envFloat(logger *slog.Logger, key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = f
}

func envDuration(logger *slog.Logger, key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", dst.String())
		return
	}
	*dst = d
}

func envBool(logger *slog.Logger, key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = b
}
