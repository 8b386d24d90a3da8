package forecast

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/corridor/internal/control"
	"github.com/star/corridor/internal/route"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func testPlans() []control.Plan {
	return []control.Plan{
		{ID: 1, Departure: t0, Route: route.New(1, 0)},
		{ID: 2, Departure: t0.Add(2 * time.Second), Route: route.New(0.5, 100)},
	}
}

func TestGenerate(t *testing.T) {
	f := New(Config{Workers: 3}, testLogger())

	frames, err := f.Generate(context.Background(), testPlans(), t0, time.Second, 4*time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 5)

	for i, kf := range frames {
		assert.True(t, kf.Timestamp.Equal(t0.Add(time.Duration(i)*time.Second)), "frame %d timestamp", i)
	}

	// Before the second departure only airplane 1 is airborne.
	require.Len(t, frames[1].Airplanes, 1)
	assert.Equal(t, 1, frames[1].Airplanes[0].ID)
	assert.Equal(t, 1000.0, frames[1].Airplanes[0].Position)

	// At t0+3s both are airborne, ordered by id.
	require.Len(t, frames[3].Airplanes, 2)
	assert.Equal(t, 1, frames[3].Airplanes[0].ID)
	assert.Equal(t, 3000.0, frames[3].Airplanes[0].Position)
	assert.Equal(t, 2, frames[3].Airplanes[1].ID)
	assert.Equal(t, 600.0, frames[3].Airplanes[1].Position)
	assert.True(t, frames[3].Airplanes[1].Airborne)
}

func TestGenerateMatchesSequential(t *testing.T) {
	plans := testPlans()
	serial := New(Config{Workers: 1}, testLogger())
	parallel := New(Config{Workers: 8}, testLogger())

	a, err := serial.Generate(context.Background(), plans, t0, 250*time.Millisecond, 10*time.Second)
	require.NoError(t, err)
	b, err := parallel.Generate(context.Background(), plans, t0, 250*time.Millisecond, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateBudget(t *testing.T) {
	f := New(Config{Workers: 2, MaxPositions: 10}, testLogger())

	_, err := f.Generate(context.Background(), testPlans(), t0, time.Second, 10*time.Second)
	var be *BudgetError
	require.True(t, errors.As(err, &be), "expected BudgetError, got %v", err)
	assert.Equal(t, 11, be.Frames)
	assert.Equal(t, 2, be.Airplanes)

	frames, err := f.Generate(context.Background(), testPlans(), t0, time.Second, 4*time.Second)
	require.NoError(t, err)
	assert.Len(t, frames, 5)
}

func TestGenerateRejectsBadShape(t *testing.T) {
	f := New(Config{}, testLogger())
	_, err := f.Generate(context.Background(), testPlans(), t0, 0, time.Second)
	assert.Error(t, err)
	_, err = f.Generate(context.Background(), testPlans(), t0, time.Second, -time.Second)
	assert.Error(t, err)
}

func TestGenerateCancelled(t *testing.T) {
	f := New(Config{Workers: 1}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Generate(ctx, testPlans(), t0, time.Second, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateEmptyPlans(t *testing.T) {
	f := New(Config{}, testLogger())
	frames, err := f.Generate(context.Background(), nil, t0, time.Second, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Empty(t, frames[0].Airplanes)
}

func TestFrames(t *testing.T) {
	assert.Equal(t, 1, Frames(0, time.Second))
	assert.Equal(t, 11, Frames(10*time.Second, time.Second))
	assert.Equal(t, 3, Frames(5*time.Second, 2*time.Second))
	assert.Equal(t, 0, Frames(time.Second, 0))
}

func TestGenerateDropsLandedAirplanes(t *testing.T) {
	f := New(Config{Workers: 2}, testLogger())
	plans := []control.Plan{
		{ID: 1, Departure: t0, Landing: t0.Add(2 * time.Second), Route: route.New(0, 5)},
		{ID: 2, Departure: t0.Add(3 * time.Second), Landing: t0.Add(10 * time.Second), Route: route.New(0, 5)},
	}

	frames, err := f.Generate(context.Background(), plans, t0, time.Second, 4*time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 5)

	for i, kf := range frames {
		assert.LessOrEqual(t, len(kf.Airplanes), 1, "frame %d has overlapping airplanes", i)
	}
	require.Len(t, frames[2].Airplanes, 1)
	assert.Equal(t, 1, frames[2].Airplanes[0].ID)
	require.Len(t, frames[3].Airplanes, 1)
	assert.Equal(t, 2, frames[3].Airplanes[0].ID)
	require.Len(t, frames[4].Airplanes, 1)
	assert.Equal(t, 2, frames[4].Airplanes[0].ID)
}
