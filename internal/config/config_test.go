package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/corridor/internal/control"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corridor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("", testLogger())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, control.DefaultConfig(), cfg.Control.CenterConfig())
	assert.Equal(t, ClockWall, cfg.Clock.Mode)
	assert.Equal(t, 600, cfg.History.Capacity)
}

func TestDefaultIsACopy(t *testing.T) {
	a := Default()
	a.Auth.PublicPaths[0] = "/mutated"
	b := Default()
	assert.Equal(t, "/api/v1/positions", b.Auth.PublicPaths[0])
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":9090"
control:
  bounds:
    start: -50
    stop: 50
    samples: 11
  step: 500ms
  separation: 25
  endurance: 10m
clock:
  mode: simulated
  start: 2026-03-01T08:00:00Z
  step: 2s
  interval: 100ms
`)

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, control.Bounds{Start: -50, Stop: 50, Samples: 11}, cfg.Control.Bounds)
	assert.Equal(t, 500*time.Millisecond, cfg.Control.Step)
	assert.Equal(t, 25.0, cfg.Control.Separation)
	assert.Equal(t, 10*time.Minute, cfg.Control.Endurance)
	assert.Equal(t, ClockSimulated, cfg.Clock.Mode)
	assert.True(t, cfg.Clock.Start.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2*time.Second, cfg.Clock.Step)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 3600, cfg.Control.MaxShiftsPerAirplane)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), testLogger())
	assert.Error(t, err)

	_, err = Load(writeFile(t, "control:\n  warp: 9\n"), testLogger())
	assert.Error(t, err, "unknown keys must be rejected")

	_, err = Load(writeFile(t, "clock:\n  mode: sundial\n"), testLogger())
	assert.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""), testLogger())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CORRIDOR_HTTP_ADDR", ":7070")
	t.Setenv("CORRIDOR_BOUNDS_SAMPLES", "21")
	t.Setenv("CORRIDOR_SEPARATION", "12.5")
	t.Setenv("CORRIDOR_ENDURANCE", "45m")
	t.Setenv("CORRIDOR_CLOCK_MODE", "SIMULATED")
	t.Setenv("CORRIDOR_AUTH_PUBLIC_PATHS", "/a, /b,,")

	cfg, err := Load("", testLogger())
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, 21, cfg.Control.Bounds.Samples)
	assert.Equal(t, 12.5, cfg.Control.Separation)
	assert.Equal(t, 45*time.Minute, cfg.Control.Endurance)
	assert.Equal(t, ClockSimulated, cfg.Clock.Mode)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Auth.PublicPaths)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "history:\n  capacity: 50\n")
	t.Setenv("CORRIDOR_HISTORY_CAPACITY", "75")

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.History.Capacity)
}

func TestInvalidEnvKeepsDefault(t *testing.T) {
	t.Setenv("CORRIDOR_BOUNDS_SAMPLES", "lots")
	t.Setenv("CORRIDOR_STEP", "-1s")
	t.Setenv("CORRIDOR_SEPARATION", "wide")
	t.Setenv("CORRIDOR_CLOCK_START", "yesterday")

	cfg, err := Load("", testLogger())
	require.NoError(t, err)
	assert.Equal(t, 101, cfg.Control.Bounds.Samples)
	assert.Equal(t, time.Second, cfg.Control.Step)
	assert.Equal(t, 0.0, cfg.Control.Separation)
	assert.True(t, cfg.Clock.Start.IsZero())
}

func TestStreamTrustProxy(t *testing.T) {
	assert.False(t, Default().Stream.TrustProxy)

	cfg, err := Load(writeFile(t, "stream:\n  trust_proxy: true\n"), testLogger())
	require.NoError(t, err)
	assert.True(t, cfg.Stream.TrustProxy)

	t.Setenv("CORRIDOR_STREAM_TRUST_PROXY", "false")
	cfg, err = Load(writeFile(t, "stream:\n  trust_proxy: true\n"), testLogger())
	require.NoError(t, err)
	assert.False(t, cfg.Stream.TrustProxy, "env overrides the file")

	t.Setenv("CORRIDOR_STREAM_TRUST_PROXY", "sometimes")
	cfg, err = Load("", testLogger())
	require.NoError(t, err)
	assert.False(t, cfg.Stream.TrustProxy)
}

func TestAuthConfig(t *testing.T) {
	t.Setenv("CORRIDOR_AUTH_ENABLED", "maybe")
	_, err := Load("", testLogger())
	assert.Error(t, err)

	t.Setenv("CORRIDOR_AUTH_ENABLED", "true")
	_, err = Load("", testLogger())
	assert.Error(t, err, "enabled auth without a token must fail")

	t.Setenv("CORRIDOR_AUTH_TOKEN", "s3cret")
	cfg, err := Load("", testLogger())
	require.NoError(t, err)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.Token)
}
