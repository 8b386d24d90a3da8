// Package airplane holds the per-airplane state that the control center drives
// with time-advance notifications.
package airplane

import (
	"fmt"
	"time"

	"github.com/star/corridor/internal/route"
)

// TimeEvent carries the logical timestamp of one clock tick.
type TimeEvent struct {
	Timestamp time.Time
}

// TimeListener consumes a TimeEvent and updates derived state.
type TimeListener interface {
	OnTimeChanged(ev TimeEvent) error
}

// InvalidTimeError is returned when a tick is older than the last one an airplane saw.
type InvalidTimeError struct {
	ID   int
	Last time.Time
	Got  time.Time
}

func (e *InvalidTimeError) Error() string {
	return fmt.Sprintf("airplane %d: time went backwards: last %s, got %s",
		e.ID, e.Last.UTC().Format(time.RFC3339Nano), e.Got.UTC().Format(time.RFC3339Nano))
}

// Airplane follows a route equation from its departure time until it lands.
// Position is only meaningful while the airplane is airborne.
type Airplane struct {
	id        int
	route     route.Equation
	departure time.Time
	landing   time.Time

	position float64
	airborne bool
	lastSeen time.Time
}

var _ TimeListener = (*Airplane)(nil)

// New creates a grounded airplane. A zero landing means it never lands.
func New(id int, departure, landing time.Time, r route.Equation) *Airplane {
	return &Airplane{
		id:        id,
		route:     r,
		departure: departure,
		landing:   landing,
	}
}

// ID is the control center assigned identifier, starting at 1.
func (a *Airplane) ID() int { return a.id }

// Route returns the route equation the airplane follows.
func (a *Airplane) Route() route.Equation { return a.route }

// DepartureTime is the admitted departure. It never changes.
func (a *Airplane) DepartureTime() time.Time { return a.departure }

// LandingTime is the last instant the airplane is airborne; zero means never.
func (a *Airplane) LandingTime() time.Time { return a.landing }

// LastSeen returns the timestamp of the last accepted tick.
func (a *Airplane) LastSeen() time.Time { return a.lastSeen }

// Position returns the position as of the last tick. ok is false before departure
// and after landing.
func (a *Airplane) Position() (pos float64, ok bool) {
	return a.position, a.airborne
}

// OnTimeChanged recomputes the position for ev.Timestamp.
func (a *Airplane) OnTimeChanged(ev TimeEvent) error {
	if !a.lastSeen.IsZero() && ev.Timestamp.Before(a.lastSeen) {
		return &InvalidTimeError{ID: a.id, Last: a.lastSeen, Got: ev.Timestamp}
	}
	a.lastSeen = ev.Timestamp

	pos, ok := PositionAt(a.departure, a.landing, a.route, ev.Timestamp)
	a.airborne = ok
	if ok {
		a.position = pos
	} else {
		a.position = 0
	}
	return nil
}

// ElapsedMillis returns t - departure in milliseconds.
func ElapsedMillis(departure, t time.Time) float64 {
	return float64(t.Sub(departure)) / float64(time.Millisecond)
}

// PositionAt evaluates the route at t for an airplane flying from departure to
// landing, both inclusive. ok is false outside that interval. A zero landing means
// the airplane never lands.
func PositionAt(departure, landing time.Time, r route.Equation, t time.Time) (float64, bool) {
	elapsed := ElapsedMillis(departure, t)
	if elapsed < 0 {
		return 0, false
	}
	if !landing.IsZero() && t.After(landing) {
		return 0, false
	}
	return r.At(elapsed), true
}
