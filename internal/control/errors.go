package control

import (
	"fmt"
	"time"
)

// ConfigurationError reports malformed construction or admission input.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SchedulingTimeoutError is returned when no collision-free slot was found within the
// shift budget, or when a collision check could not be completed. The airplane is not
// registered in either case.
type SchedulingTimeoutError struct {
	Desired       time.Time
	LastCandidate time.Time
	Shifts        int
	// Cause is set when a collision check failed rather than the budget running out.
	Cause error
}

func (e *SchedulingTimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scheduling aborted after %d shifts (desired %s, candidate %s): %v",
			e.Shifts, e.Desired.UTC().Format(time.RFC3339), e.LastCandidate.UTC().Format(time.RFC3339), e.Cause)
	}
	return fmt.Sprintf("no collision-free departure within %d shifts of %s (last candidate %s)",
		e.Shifts, e.Desired.UTC().Format(time.RFC3339), e.LastCandidate.UTC().Format(time.RFC3339))
}

func (e *SchedulingTimeoutError) Unwrap() error { return e.Cause }
