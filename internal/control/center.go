// Package control implements the airplane control center: the registry of admitted
// airplanes, the departure scheduler and the time-advance broadcast.
//
// A single mutex serializes admissions and broadcasts, so a collision scan always runs
// against a registry that cannot change underneath it and a tick never observes a
// partially registered airplane.
package control

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/star/corridor/internal/airplane"
	"github.com/star/corridor/internal/collision"
	"github.com/star/corridor/internal/metrics"
	"github.com/star/corridor/internal/route"
)

// DefaultStep is the scheduling granularity: the amount a conflicting candidate
// departure is pushed back before the registry is rescanned.
const DefaultStep = time.Second

// Config holds control center configuration.
type Config struct {
	Bounds   Bounds
	Step     time.Duration
	Detector collision.Detector
	// MaxShiftsPerAirplane scales the shift budget: an admission may shift at most
	// (registered+1)*MaxShiftsPerAirplane times before giving up.
	MaxShiftsPerAirplane int
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Bounds: Bounds{Start: 0, Stop: 100000, Samples: 101},
		Step:   DefaultStep,
		Detector: collision.Detector{
			Epsilon:   route.DefaultEpsilon,
			Endurance: 30 * time.Minute,
		},
		MaxShiftsPerAirplane: 3600,
	}
}

// Position is one row of the position snapshot.
type Position struct {
	ID            int       `json:"id"`
	Position      float64   `json:"position"`
	Airborne      bool      `json:"airborne"`
	DepartureTime time.Time `json:"departure_time"`
}

// Snapshot is the registry state as of the last broadcast.
type Snapshot struct {
	Timestamp time.Time  `json:"timestamp"`
	Positions []Position `json:"positions"`
}

// Plan is the immutable part of an admitted airplane. A zero Landing means the
// airplane never lands.
type Plan struct {
	ID        int
	Departure time.Time
	Landing   time.Time
	Route     route.Equation
}

// Admission describes the outcome of scheduling one airplane.
type Admission struct {
	ID        int
	Desired   time.Time
	Departure time.Time
	Shifts    int
}

// Conflict is a registered airplane that collides with a proposed flight.
type Conflict struct {
	ID     int
	Window collision.Window
}

// Center owns every admitted airplane. Airplanes live in an arena indexed by id-1
// and are never handed out.
type Center struct {
	mu          sync.Mutex
	airplanes   []*airplane.Airplane
	lastAdvance time.Time

	config Config
	logger *slog.Logger
}

// New validates cfg and returns an empty control center.
func New(cfg Config, logger *slog.Logger) (*Center, error) {
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Step <= 0 {
		return nil, &ConfigurationError{Field: "step", Err: fmt.Errorf("must be positive, got %s", cfg.Step)}
	}
	if err := cfg.Detector.Validate(); err != nil {
		return nil, &ConfigurationError{Field: "detector", Err: err}
	}
	if cfg.MaxShiftsPerAirplane <= 0 {
		return nil, &ConfigurationError{Field: "max_shifts_per_airplane", Err: errors.New("must be positive")}
	}

	logger.Info("control center initialized",
		"component", "control",
		"bounds_start", cfg.Bounds.Start,
		"bounds_stop", cfg.Bounds.Stop,
		"bounds_samples", cfg.Bounds.Samples,
		"step_ms", cfg.Step.Milliseconds(),
		"separation", cfg.Detector.Separation,
		"endurance_seconds", cfg.Detector.Endurance.Seconds(),
	)
	metrics.SetRegistrySize(0)

	return &Center{
		config: cfg,
		logger: logger,
	}, nil
}

// Config returns the configuration the center was built with.
func (c *Center) Config() Config {
	return c.config
}

// AddAirplane schedules and registers an airplane, returning its departure time.
func (c *Center) AddAirplane(desired time.Time, r route.Equation) (time.Time, error) {
	adm, err := c.Admit(desired, r)
	if err != nil {
		return time.Time{}, err
	}
	return adm.Departure, nil
}

// Admit is AddAirplane with the assigned id and shift count.
func (c *Center) Admit(desired time.Time, r route.Equation) (Admission, error) {
	if err := r.Validate(); err != nil {
		return Admission{}, &ConfigurationError{Field: "route", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	departure, shifts, err := c.schedule(desired, r)
	if err != nil {
		metrics.IncSchedulingTimeouts()
		c.logger.Warn("admission rejected",
			"component", "control",
			"desired", desired.UTC().Format(time.RFC3339),
			"route", r.String(),
			"shifts", shifts,
			"error", err,
		)
		return Admission{}, err
	}

	id := len(c.airplanes) + 1
	a := airplane.New(id, departure, c.config.Detector.Landing(departure), r)
	if !c.lastAdvance.IsZero() {
		// Bring the newcomer to the current tick so snapshots stay consistent.
		if err := a.OnTimeChanged(airplane.TimeEvent{Timestamp: c.lastAdvance}); err != nil {
			return Admission{}, fmt.Errorf("syncing airplane %d: %w", id, err)
		}
	}
	c.airplanes = append(c.airplanes, a)

	metrics.RecordAdmission(shifts, time.Since(start))
	metrics.SetRegistrySize(len(c.airplanes))

	c.logger.Info("airplane admitted",
		"component", "control",
		"id", id,
		"desired", desired.UTC().Format(time.RFC3339),
		"departure", departure.UTC().Format(time.RFC3339),
		"shifts", shifts,
		"route", r.String(),
	)

	return Admission{ID: id, Desired: desired, Departure: departure, Shifts: shifts}, nil
}

// Check runs the scheduler without registering anything. It also reports which
// registered airplanes conflict with the desired departure as given.
func (c *Center) Check(desired time.Time, r route.Equation) (Admission, []Conflict, error) {
	if err := r.Validate(); err != nil {
		return Admission{}, nil, &ConfigurationError{Field: "route", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var conflicts []Conflict
	proposed := collision.Flight{Departure: desired, Route: r}
	for _, a := range c.airplanes {
		w, hit, err := c.config.Detector.Conflict(flightOf(a), proposed)
		if err != nil {
			return Admission{}, nil, &SchedulingTimeoutError{Desired: desired, LastCandidate: desired, Cause: err}
		}
		if hit {
			conflicts = append(conflicts, Conflict{ID: a.ID(), Window: w})
		}
	}

	departure, shifts, err := c.schedule(desired, r)
	if err != nil {
		return Admission{}, conflicts, err
	}
	return Admission{ID: len(c.airplanes) + 1, Desired: desired, Departure: departure, Shifts: shifts}, conflicts, nil
}

// schedule finds the earliest departure at or after desired, in Step increments, that
// collides with no registered airplane. Any shift restarts the scan from the first
// airplane, since the new candidate may collide with one that was already cleared.
// Caller must hold mu.
func (c *Center) schedule(desired time.Time, r route.Equation) (time.Time, int, error) {
	budget := (len(c.airplanes) + 1) * c.config.MaxShiftsPerAirplane
	candidate := desired
	shifts := 0

	for {
		blocker, err := c.firstConflict(collision.Flight{Departure: candidate, Route: r})
		if err != nil {
			return time.Time{}, shifts, &SchedulingTimeoutError{
				Desired:       desired,
				LastCandidate: candidate,
				Shifts:        shifts,
				Cause:         err,
			}
		}
		if blocker == 0 {
			return candidate, shifts, nil
		}
		if shifts >= budget {
			return time.Time{}, shifts, &SchedulingTimeoutError{
				Desired:       desired,
				LastCandidate: candidate,
				Shifts:        shifts,
			}
		}

		c.logger.Debug("departure conflict",
			"component", "control",
			"candidate", candidate.UTC().Format(time.RFC3339),
			"blocking_id", blocker,
		)
		candidate = candidate.Add(c.config.Step)
		shifts++
	}
}

// firstConflict returns the id of the first registered airplane colliding with f,
// or 0 when there is none. Caller must hold mu.
func (c *Center) firstConflict(f collision.Flight) (int, error) {
	for _, a := range c.airplanes {
		hit, err := c.config.Detector.Collides(flightOf(a), f)
		if err != nil {
			return 0, fmt.Errorf("checking against airplane %d: %w", a.ID(), err)
		}
		if hit {
			return a.ID(), nil
		}
	}
	return 0, nil
}

func flightOf(a *airplane.Airplane) collision.Flight {
	return collision.Flight{Departure: a.DepartureTime(), Route: a.Route()}
}

// Advance delivers a TimeEvent for now to every airplane in id order. A failing
// airplane does not stop the broadcast; all failures are returned joined.
func (c *Center) Advance(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	ev := airplane.TimeEvent{Timestamp: now}

	var errs []error
	airborne := 0
	for _, a := range c.airplanes {
		if err := a.OnTimeChanged(ev); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := a.Position(); ok {
			airborne++
		}
	}
	if now.After(c.lastAdvance) {
		c.lastAdvance = now
	}

	metrics.ObserveAdvance(time.Since(start), airborne, len(errs))
	return errors.Join(errs...)
}

// ListPositions returns the positions as of the last Advance, ordered by id.
func (c *Center) ListPositions() []Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionsLocked()
}

// Snapshot returns the positions together with the time of the last Advance.
func (c *Center) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Timestamp: c.lastAdvance, Positions: c.positionsLocked()}
}

func (c *Center) positionsLocked() []Position {
	out := make([]Position, len(c.airplanes))
	for i, a := range c.airplanes {
		pos, ok := a.Position()
		out[i] = Position{
			ID:            a.ID(),
			Position:      pos,
			Airborne:      ok,
			DepartureTime: a.DepartureTime(),
		}
	}
	return out
}

// Plans returns the departure and route of every airplane, ordered by id.
func (c *Center) Plans() []Plan {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Plan, len(c.airplanes))
	for i, a := range c.airplanes {
		out[i] = Plan{ID: a.ID(), Departure: a.DepartureTime(), Landing: a.LandingTime(), Route: a.Route()}
	}
	return out
}

// Len returns the number of registered airplanes.
func (c *Center) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.airplanes)
}
