// Package clock supplies the time source that drives the control center and the
// loop that pushes each tick into it.
package clock

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBackwards is returned when a simulated clock is asked to move into the past.
var ErrBackwards = errors.New("clock: time moved backwards")

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Ticker is a Clock that advances only when told to.
type Ticker interface {
	Clock
	Tick() time.Time
}

// Setter is a Clock that can be moved to an externally supplied time.
type Setter interface {
	Clock
	Set(t time.Time) error
}

// Wall is the system clock.
type Wall struct{}

func (Wall) Now() time.Time { return time.Now() }

// Simulated is a logical clock that starts at a fixed instant and advances by a
// fixed step on every Tick. Safe for concurrent use.
type Simulated struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewSimulated returns a clock reading start that advances by step per Tick.
func NewSimulated(start time.Time, step time.Duration) (*Simulated, error) {
	if step <= 0 {
		return nil, fmt.Errorf("clock: step must be positive, got %s", step)
	}
	return &Simulated{now: start, step: step}, nil
}

func (s *Simulated) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Tick advances the clock by one step and returns the new reading.
func (s *Simulated) Tick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(s.step)
	return s.now
}

// Set moves the clock to t. Setting the current reading again is allowed.
func (s *Simulated) Set(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Before(s.now) {
		return fmt.Errorf("%w: %s is before %s", ErrBackwards,
			t.UTC().Format(time.RFC3339Nano), s.now.UTC().Format(time.RFC3339Nano))
	}
	s.now = t
	return nil
}

// StepSize returns the amount a Tick advances the clock.
func (s *Simulated) StepSize() time.Duration {
	return s.step
}
