package control

import (
	"errors"
	"fmt"
	"math"
)

// Bounds is the coordinate space (start, stop, samples) used to size the sampling
// grid handed to the visualizer.
type Bounds struct {
	Start   float64 `json:"start" yaml:"start"`
	Stop    float64 `json:"stop" yaml:"stop"`
	Samples int     `json:"samples" yaml:"samples"`
}

// Validate requires finite values, Start < Stop and at least one sample.
func (b Bounds) Validate() error {
	var err error
	switch {
	case math.IsNaN(b.Start) || math.IsInf(b.Start, 0):
		err = fmt.Errorf("start must be finite, got %v", b.Start)
	case math.IsNaN(b.Stop) || math.IsInf(b.Stop, 0):
		err = fmt.Errorf("stop must be finite, got %v", b.Stop)
	case b.Start >= b.Stop:
		err = fmt.Errorf("start %v must be less than stop %v", b.Start, b.Stop)
	case b.Samples <= 0:
		err = errors.New("samples must be positive")
	}
	if err != nil {
		return &ConfigurationError{Field: "bounds", Err: err}
	}
	return nil
}

// Grid returns Samples evenly spaced points from Start to Stop inclusive.
func (b Bounds) Grid() []float64 {
	if b.Samples <= 0 {
		return nil
	}
	out := make([]float64, b.Samples)
	if b.Samples == 1 {
		out[0] = b.Start
		return out
	}
	step := b.spacing()
	for i := range out {
		out[i] = b.Start + float64(i)*step
	}
	out[len(out)-1] = b.Stop
	return out
}

func (b Bounds) spacing() float64 {
	return (b.Stop - b.Start) / float64(b.Samples-1)
}

// Bin returns the index of the sample nearest to pos. ok is false outside [Start, Stop].
func (b Bounds) Bin(pos float64) (int, bool) {
	if b.Samples <= 0 || math.IsNaN(pos) || pos < b.Start || pos > b.Stop {
		return 0, false
	}
	if b.Samples == 1 {
		return 0, true
	}
	i := int(math.Round((pos - b.Start) / b.spacing()))
	return min(max(i, 0), b.Samples-1), true
}

// Cell is one grid sample and the airborne airplanes closest to it.
type Cell struct {
	Coordinate float64 `json:"coordinate"`
	Airplanes  []int   `json:"airplanes,omitempty"`
}

// Occupancy bins airborne positions onto the sampling grid. Positions outside the
// bounds are returned separately by id.
func (b Bounds) Occupancy(positions []Position) (cells []Cell, outside []int) {
	samples := b.Grid()
	cells = make([]Cell, len(samples))
	for i, s := range samples {
		cells[i].Coordinate = s
	}
	for _, p := range positions {
		if !p.Airborne {
			continue
		}
		i, ok := b.Bin(p.Position)
		if !ok {
			outside = append(outside, p.ID)
			continue
		}
		cells[i].Airplanes = append(cells[i].Airplanes, p.ID)
	}
	return cells, outside
}
