package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/star/corridor/internal/clock"
	"github.com/star/corridor/internal/config"
	"github.com/star/corridor/internal/control"
	"github.com/star/corridor/internal/route"
)

// Scenario is a deterministic run: airplanes requested at offsets from Start, then
// Ticks steps of a simulated clock.
type Scenario struct {
	Control   config.Control     `yaml:"control"`
	Start     time.Time          `yaml:"start"`
	Step      time.Duration      `yaml:"step"`
	Ticks     int                `yaml:"ticks"`
	Airplanes []ScenarioAirplane `yaml:"airplanes"`
}

type ScenarioAirplane struct {
	// Offset is the desired departure relative to Start.
	Offset    time.Duration `yaml:"offset"`
	Slope     float64       `yaml:"slope"`
	Intercept float64       `yaml:"intercept"`
}

// ParseScenario decodes a YAML scenario over the default control settings.
func ParseScenario(r io.Reader) (Scenario, error) {
	sc := Scenario{
		Control: config.Default().Control,
		Step:    time.Second,
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return sc, errors.New("scenario is empty")
		}
		return sc, fmt.Errorf("failed to unmarshal scenario: %w", err)
	}

	if sc.Start.IsZero() {
		return sc, errors.New("scenario start is required")
	}
	if sc.Ticks < 0 {
		return sc, fmt.Errorf("scenario ticks must not be negative, got %d", sc.Ticks)
	}
	return sc, nil
}

// Outcome is everything a scenario run produced.
type Outcome struct {
	Admissions []AdmissionOutcome `json:"admissions"`
	Ticks      []control.Snapshot `json:"ticks"`
	Grid       []control.Cell     `json:"grid"`
	Outside    []int              `json:"outside"`
}

// AdmissionOutcome is one requested airplane; Error is set when it was rejected.
type AdmissionOutcome struct {
	Desired   time.Time `json:"desired_departure"`
	Departure time.Time `json:"departure_time,omitempty"`
	ID        int       `json:"id,omitempty"`
	Shifts    int       `json:"shifts"`
	Error     string    `json:"error,omitempty"`
}

// Run admits the scenario's airplanes in order and then steps the clock.
func Run(ctx context.Context, sc Scenario, logger *slog.Logger) (Outcome, error) {
	center, err := control.New(sc.Control.CenterConfig(), logger)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	for _, a := range sc.Airplanes {
		desired := sc.Start.Add(a.Offset)
		adm, err := center.Admit(desired, route.New(a.Slope, a.Intercept))
		if err != nil {
			out.Admissions = append(out.Admissions, AdmissionOutcome{Desired: desired, Error: err.Error()})
			continue
		}
		out.Admissions = append(out.Admissions, AdmissionOutcome{
			Desired:   adm.Desired,
			Departure: adm.Departure,
			ID:        adm.ID,
			Shifts:    adm.Shifts,
		})
	}

	clk, err := clock.NewSimulated(sc.Start, sc.Step)
	if err != nil {
		return out, err
	}
	driver := &clock.Driver{Clock: clk, Interval: sc.Step, Target: center, Logger: logger}

	for i := 0; i < sc.Ticks; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		// Rejected ticks are logged by the driver.
		driver.Step(ctx)
		out.Ticks = append(out.Ticks, center.Snapshot())
	}

	out.Grid, out.Outside = center.Config().Bounds.Occupancy(center.ListPositions())
	return out, nil
}
