package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func loadScenario(t *testing.T, path string) Scenario {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	sc, err := ParseScenario(f)
	require.NoError(t, err)
	return sc
}

func TestParseScenario(t *testing.T) {
	sc := loadScenario(t, "testdata/holding.yaml")

	assert.Equal(t, t0, sc.Start.UTC())
	assert.Equal(t, time.Second, sc.Step)
	assert.Equal(t, 3, sc.Ticks)
	require.Len(t, sc.Airplanes, 3)
	assert.Equal(t, 5.0, sc.Airplanes[0].Intercept)

	// Overridden bounds, default everything else.
	assert.Equal(t, 11, sc.Control.Bounds.Samples)
	assert.Equal(t, 30*time.Minute, sc.Control.Endurance)
	assert.Equal(t, 3600, sc.Control.MaxShiftsPerAirplane)
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "", "empty"},
		{"missing start", "ticks: 1\n", "start is required"},
		{"unknown field", "start: 2026-03-01T12:00:00Z\nspeed: 3\n", "failed to unmarshal"},
		{"negative ticks", "start: 2026-03-01T12:00:00Z\nticks: -1\n", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunHolding(t *testing.T) {
	sc := loadScenario(t, "testdata/holding.yaml")

	out, err := Run(context.Background(), sc, testLogger())
	require.NoError(t, err)

	require.Len(t, out.Admissions, 3)
	assert.Equal(t, t0, out.Admissions[0].Departure.UTC())
	assert.Equal(t, 2, out.Admissions[1].ID)
	assert.Equal(t, t0.Add(30*time.Minute+time.Second), out.Admissions[1].Departure.UTC())
	assert.Equal(t, 1801, out.Admissions[1].Shifts)
	assert.Equal(t, t0, out.Admissions[2].Departure.UTC())
	assert.Equal(t, 0, out.Admissions[2].Shifts)

	require.Len(t, out.Ticks, 3)
	first := out.Ticks[0]
	assert.Equal(t, t0.Add(time.Second), first.Timestamp.UTC())
	assert.Equal(t, 5.0, first.Positions[0].Position)
	assert.False(t, first.Positions[1].Airborne)
	assert.Equal(t, 2000.0, first.Positions[2].Position)

	last := out.Ticks[2]
	assert.Equal(t, 4000.0, last.Positions[2].Position)

	require.Len(t, out.Grid, 11)
	assert.Equal(t, []int{1}, out.Grid[0].Airplanes)
	assert.Equal(t, []int{3}, out.Grid[4].Airplanes)
	assert.Empty(t, out.Outside)
}

func TestRunRejectsTimeout(t *testing.T) {
	sc := loadScenario(t, "testdata/holding.yaml")
	sc.Control.Endurance = 0
	sc.Control.MaxShiftsPerAirplane = 2
	sc.Ticks = 0

	out, err := Run(context.Background(), sc, testLogger())
	require.NoError(t, err)
	require.Len(t, out.Admissions, 3)
	assert.Contains(t, out.Admissions[1].Error, "no collision-free departure within 4 shifts")
	assert.Zero(t, out.Admissions[1].ID)
	assert.Empty(t, out.Ticks)
}

func TestRunInvalidControl(t *testing.T) {
	sc := loadScenario(t, "testdata/holding.yaml")
	sc.Control.Bounds.Samples = 0

	_, err := Run(context.Background(), sc, testLogger())
	require.Error(t, err)
}

func TestPrintText(t *testing.T) {
	sc := loadScenario(t, "testdata/holding.yaml")
	out, err := Run(context.Background(), sc, testLogger())
	require.NoError(t, err)

	var buf bytes.Buffer
	printText(&buf, out)
	text := buf.String()

	assert.Contains(t, text, "Admissions: 3")
	assert.Contains(t, text, "airplane 2: desired=2026-03-01T12:00:00Z departure=2026-03-01T12:30:01Z shifts=1801")
	assert.Contains(t, text, "airplane 2: grounded")
	assert.Contains(t, text, "Occupied cells: 2")
}
