// Package forecast projects admitted flight plans forward in time as a series of
// position keyframes, for previews and the visualizer.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/star/corridor/internal/airplane"
	"github.com/star/corridor/internal/control"
	"github.com/star/corridor/internal/metrics"
)

// DefaultMaxPositions bounds frames*airplanes for a single forecast.
const DefaultMaxPositions = 500_000

// Keyframe holds the airborne positions of all airplanes at one instant, ordered by id.
type Keyframe struct {
	Timestamp time.Time          `json:"timestamp"`
	Airplanes []control.Position `json:"airplanes"`
}

// BudgetError is returned when a forecast would exceed MaxPositions.
type BudgetError struct {
	Frames    int
	Airplanes int
	Max       int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("forecast of %d frames x %d airplanes exceeds budget of %d positions",
		e.Frames, e.Airplanes, e.Max)
}

// Config holds forecaster configuration.
type Config struct {
	Workers      int // frames computed concurrently (default: runtime.NumCPU())
	MaxPositions int
}

// Forecaster generates keyframes from flight plans.
type Forecaster struct {
	config Config
	logger *slog.Logger
}

// New returns a forecaster. Zero fields in cfg fall back to defaults.
func New(cfg Config, logger *slog.Logger) *Forecaster {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = DefaultMaxPositions
	}
	return &Forecaster{config: cfg, logger: logger}
}

// Frames returns the number of keyframes Generate produces for horizon and step.
func Frames(horizon, step time.Duration) int {
	if step <= 0 || horizon < 0 {
		return 0
	}
	return int(horizon/step) + 1
}

// Check reports whether a forecast of the given shape fits the budget.
func (f *Forecaster) Check(airplanes int, horizon, step time.Duration) error {
	if step <= 0 {
		return errors.New("forecast: step must be positive")
	}
	if horizon < 0 {
		return errors.New("forecast: horizon must not be negative")
	}
	frames := Frames(horizon, step)
	if airplanes > 0 && frames > f.config.MaxPositions/airplanes {
		return &BudgetError{Frames: frames, Airplanes: airplanes, Max: f.config.MaxPositions}
	}
	if frames > f.config.MaxPositions {
		return &BudgetError{Frames: frames, Airplanes: airplanes, Max: f.config.MaxPositions}
	}
	return nil
}

// Generate computes keyframes at start, start+step, ... start+horizon. Frames are
// computed concurrently but returned in time order.
func (f *Forecaster) Generate(ctx context.Context, plans []control.Plan, start time.Time, step, horizon time.Duration) ([]*Keyframe, error) {
	if err := f.Check(len(plans), horizon, step); err != nil {
		return nil, err
	}

	begin := time.Now()
	frames := make([]*Keyframe, Frames(horizon, step))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.Workers)
	for i := range frames {
		at := start.Add(time.Duration(i) * step)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			frames[i] = keyframeAt(plans, at)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	duration := time.Since(begin)
	metrics.ObserveForecast(duration)
	f.logger.Debug("forecast generated",
		"component", "forecast",
		"frames", len(frames),
		"airplanes", len(plans),
		"workers", f.config.Workers,
		"duration_ms", duration.Milliseconds(),
	)
	return frames, nil
}

func keyframeAt(plans []control.Plan, at time.Time) *Keyframe {
	kf := &Keyframe{Timestamp: at, Airplanes: make([]control.Position, 0, len(plans))}
	for _, p := range plans {
		pos, ok := airplane.PositionAt(p.Departure, p.Landing, p.Route, at)
		if !ok {
			continue
		}
		kf.Airplanes = append(kf.Airplanes, control.Position{
			ID:            p.ID,
			Position:      pos,
			Airborne:      true,
			DepartureTime: p.Departure,
		})
	}
	return kf
}
