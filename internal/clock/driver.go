package clock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/star/corridor/internal/metrics"
)

// Advancer receives every tick. control.Center satisfies it.
type Advancer interface {
	Advance(now time.Time) error
}

// Observer is notified after the Advancer has processed a tick.
type Observer interface {
	Observe(now time.Time)
}

// Driver pushes clock ticks into an Advancer at a fixed wall-clock interval.
// Ticks and external advances are delivered one at a time.
type Driver struct {
	Clock     Clock
	Interval  time.Duration
	Target    Advancer
	Observers []Observer
	Logger    *slog.Logger

	mu sync.Mutex
}

// Run ticks every Interval until ctx is cancelled. Per-airplane failures are logged
// and do not stop the loop.
func (d *Driver) Run(ctx context.Context) error {
	if d.Interval <= 0 {
		return errors.New("clock: driver interval must be positive")
	}

	d.Logger.Info("clock driver started",
		"component", "clock",
		"interval_ms", d.Interval.Milliseconds(),
		"start", d.Clock.Now().UTC().Format(time.RFC3339),
	)

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Logger.Info("clock driver stopped", "component", "clock")
			return nil
		case <-ticker.C:
			d.Step(ctx)
		}
	}
}

// Step runs one tick synchronously and returns the time delivered along with the
// joined per-airplane errors, if any.
func (d *Driver) Step(ctx context.Context) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var now time.Time
	if t, ok := d.Clock.(Ticker); ok {
		now = t.Tick()
	} else {
		now = d.Clock.Now()
	}
	return now, d.deliver(ctx, now)
}

// AdvanceTo delivers an externally supplied time. A Setter clock is moved to now
// first so later ticks continue from there; if it would move backwards the error
// wraps ErrBackwards and nothing is delivered.
func (d *Driver) AdvanceTo(ctx context.Context, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.Clock.(Setter); ok {
		if err := s.Set(now); err != nil {
			return err
		}
	}
	return d.deliver(ctx, now)
}

// deliver advances the target and notifies observers. Caller must hold mu.
func (d *Driver) deliver(ctx context.Context, now time.Time) error {
	err := d.Target.Advance(now)
	metrics.IncTicks()
	if err != nil {
		for _, e := range unjoin(err) {
			d.Logger.Warn("airplane rejected tick",
				"component", "clock",
				"now", now.UTC().Format(time.RFC3339Nano),
				"error", e,
			)
		}
	}

	if ctx.Err() != nil {
		return err
	}
	for _, o := range d.Observers {
		o.Observe(now)
	}
	return err
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
