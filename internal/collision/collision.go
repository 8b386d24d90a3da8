// Package collision decides whether two airplanes on linear routes ever come within
// a minimum separation while both are airborne.
//
// Both trajectories are expressed against a shared clock measured in milliseconds from
// the earlier departure, so the difference of the two positions is itself linear:
//
//	d(t) = k*t + c
//
// The airplanes conflict when {t : |d(t)| <= separation} intersects the window in which
// both are airborne. For parallel routes that set is either empty or everything.
package collision

import (
	"fmt"
	"math"
	"time"

	"github.com/star/corridor/internal/route"
)

// Flight is the pair the detector reasons about.
type Flight struct {
	Departure time.Time
	Route     route.Equation
}

// DegenerateRouteError reports that the closed-form solve left floating-point range.
type DegenerateRouteError struct {
	A, B   Flight
	Reason string
}

func (e *DegenerateRouteError) Error() string {
	return fmt.Sprintf("degenerate collision solve between %v and %v: %s", e.A.Route, e.B.Route, e.Reason)
}

// Detector holds the tolerances for conflict checks. The zero value checks for exact
// coincidence over an unbounded flight with DefaultEpsilon used for slope comparison.
type Detector struct {
	// Separation is the minimum distance (delta) two airplanes must keep.
	Separation float64
	// Epsilon is the slope tolerance under which routes are treated as parallel.
	Epsilon float64
	// Endurance bounds each airplane's airborne interval to [departure, departure+Endurance].
	// Zero means airplanes stay airborne forever.
	Endurance time.Duration
	// Horizon is an absolute bound on simulated time. Zero means unbounded.
	Horizon time.Time
}

// Window is the span of time during which a conflict holds.
type Window struct {
	Start time.Time
	End   time.Time
	// Open is set when the conflict never ends; End is then zero.
	Open bool
}

// Validate checks the tolerances.
func (d Detector) Validate() error {
	if math.IsNaN(d.Separation) || math.IsInf(d.Separation, 0) || d.Separation < 0 {
		return fmt.Errorf("separation must be a finite non-negative number, got %v", d.Separation)
	}
	if math.IsNaN(d.Epsilon) || math.IsInf(d.Epsilon, 0) || d.Epsilon < 0 {
		return fmt.Errorf("epsilon must be a finite non-negative number, got %v", d.Epsilon)
	}
	if d.Endurance < 0 {
		return fmt.Errorf("endurance must not be negative, got %s", d.Endurance)
	}
	return nil
}

func (d Detector) epsilon() float64 {
	if d.Epsilon == 0 {
		return route.DefaultEpsilon
	}
	return d.Epsilon
}

// Landing returns the last instant an airplane departing at departure is airborne:
// the earlier of departure+Endurance and Horizon. Zero means it never lands.
func (d Detector) Landing(departure time.Time) time.Time {
	var landing time.Time
	if d.Endurance > 0 {
		landing = departure.Add(d.Endurance)
	}
	if !d.Horizon.IsZero() && (landing.IsZero() || d.Horizon.Before(landing)) {
		landing = d.Horizon
	}
	return landing
}

// Collides reports whether a and b violate the separation at a common airborne instant.
// The result does not depend on argument order.
func (d Detector) Collides(a, b Flight) (bool, error) {
	_, hit, err := d.Conflict(a, b)
	return hit, err
}

// Conflict is Collides that also returns the conflicting window.
func (d Detector) Conflict(a, b Flight) (Window, bool, error) {
	ref := a.Departure
	if b.Departure.Before(ref) {
		ref = b.Departure
	}
	sA := millisSince(ref, a.Departure)
	sB := millisSince(ref, b.Departure)

	lo, hi := d.airborneWindow(ref, sA, sB)
	if hi < lo {
		return Window{}, false, nil
	}

	aA, bA := a.Route.Slope(), a.Route.Intercept()
	aB, bB := b.Route.Slope(), b.Route.Intercept()

	k := aA - aB
	c := (bA - aA*sA) - (bB - aB*sB)
	if !finite(k) || !finite(c) {
		return Window{}, false, &DegenerateRouteError{A: a, B: b, Reason: "position difference is not representable"}
	}

	if a.Route.Parallel(b.Route, d.epsilon()) {
		if math.Abs(c) > d.Separation {
			return Window{}, false, nil
		}
		return makeWindow(ref, lo, hi), true, nil
	}

	t1 := (-d.Separation - c) / k
	t2 := (d.Separation - c) / k
	if math.IsNaN(t1) || math.IsNaN(t2) {
		return Window{}, false, &DegenerateRouteError{A: a, B: b, Reason: "crossing time is not a number"}
	}
	from, to := math.Min(t1, t2), math.Max(t1, t2)

	from = math.Max(from, lo)
	to = math.Min(to, hi)
	if from > to {
		return Window{}, false, nil
	}
	return makeWindow(ref, from, to), true, nil
}

// airborneWindow returns the interval, in milliseconds after ref, in which both
// airplanes are flying. hi is +Inf when unbounded.
func (d Detector) airborneWindow(ref time.Time, sA, sB float64) (lo, hi float64) {
	lo = math.Max(sA, sB)
	hi = math.Inf(1)
	if d.Endurance > 0 {
		hi = math.Min(sA, sB) + float64(d.Endurance)/float64(time.Millisecond)
	}
	if !d.Horizon.IsZero() {
		hi = math.Min(hi, millisSince(ref, d.Horizon))
	}
	return lo, hi
}

func millisSince(ref, t time.Time) float64 {
	return float64(t.Sub(ref)) / float64(time.Millisecond)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func makeWindow(ref time.Time, from, to float64) Window {
	w := Window{Start: ref.Add(millisToDuration(from))}
	if math.IsInf(to, 1) {
		w.Open = true
		return w
	}
	w.End = ref.Add(millisToDuration(to))
	return w
}

// millisToDuration converts with saturation; windows far outside the time.Duration
// range are only used for reporting.
func millisToDuration(ms float64) time.Duration {
	ns := ms * float64(time.Millisecond)
	switch {
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case ns <= math.MinInt64:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}
