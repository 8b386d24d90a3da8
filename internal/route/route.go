// Package route describes the linear trajectory an airplane follows after departure.
package route

import (
	"fmt"
	"math"
)

// DefaultEpsilon is the tolerance used to compare route coefficients.
const DefaultEpsilon = 1e-9

// Equation is an immutable linear trajectory: position(elapsed) = slope*elapsed + intercept,
// where elapsed is milliseconds since the owning airplane departed.
type Equation struct {
	slope     float64
	intercept float64
}

// New creates a route equation. It does not validate; call Validate before use.
func New(slope, intercept float64) Equation {
	return Equation{slope: slope, intercept: intercept}
}

// Slope returns the position change per elapsed millisecond.
func (e Equation) Slope() float64 {
	return e.slope
}

// Intercept returns the position at departure.
func (e Equation) Intercept() float64 {
	return e.intercept
}

// Validate reports whether both coefficients are finite.
func (e Equation) Validate() error {
	if math.IsNaN(e.slope) || math.IsInf(e.slope, 0) {
		return fmt.Errorf("slope must be finite, got %v", e.slope)
	}
	if math.IsNaN(e.intercept) || math.IsInf(e.intercept, 0) {
		return fmt.Errorf("intercept must be finite, got %v", e.intercept)
	}
	return nil
}

// At returns the position after elapsed milliseconds.
func (e Equation) At(elapsed float64) float64 {
	return e.slope*elapsed + e.intercept
}

// Parallel reports whether the slopes match within eps.
func (e Equation) Parallel(o Equation, eps float64) bool {
	return math.Abs(e.slope-o.slope) <= eps
}

// Identical reports whether slope and intercept both match within eps.
func (e Equation) Identical(o Equation, eps float64) bool {
	return e.Parallel(o, eps) && math.Abs(e.intercept-o.intercept) <= eps
}

func (e Equation) String() string {
	return fmt.Sprintf("p(t) = %g*t + %g", e.slope, e.intercept)
}
