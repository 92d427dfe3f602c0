package barrier

import (
	"errors"
	"fmt"
)

// ErrDegenerateGeometry marks a shrink that had to be floored to keep the innermost ring open.
var ErrDegenerateGeometry = errors.New("degenerate barrier geometry")

// DegenerateGeometryError describes a floored shrink target. It is reported, never returned
// from a tick.
type DegenerateGeometryError struct {
	Handle    Handle
	Requested float64
	Floor     float64
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("barrier %d: shrink target %.2f would close the ring, floored to %.2f", e.Handle, e.Requested, e.Floor)
}

func (e *DegenerateGeometryError) Unwrap() error {
	return ErrDegenerateGeometry
}

// Layout holds the parameters of one shrink cycle's target computation.
type Layout struct {
	// Factor scales the innermost radius each cycle, in (0,1).
	Factor float64
	// Floor is the smallest outer radius the innermost barrier may be given.
	Floor float64
	// Pitch is the outer-to-outer distance between neighbours: thickness plus spacing.
	Pitch float64
	// MinOuter is the outer radius below which the ring could no longer hold a body.
	MinOuter float64
}

// Targets is the result of ComputeTargets.
type Targets struct {
	Radii []float64
	// Floored is set when the innermost target was raised to the floor.
	Floored bool
	// Degenerate is set when the unfloored target would have left no room inside the ring.
	Degenerate bool
	Requested  float64
}

// ComputeTargets assigns shrink targets to the solid barriers, given their current outer
// radii in ascending order. The innermost shrinks by the layout factor but never below
// the floor and never grows; every other target sits exactly one pitch outside its
// inner neighbour's target. Inputs are not modified.
func ComputeTargets(outers []float64, l Layout) Targets {
	if len(outers) == 0 {
		return Targets{}
	}

	floor := l.Floor
	if floor < l.MinOuter {
		floor = l.MinOuter
	}

	res := Targets{Radii: make([]float64, len(outers))}
	requested := outers[0] * l.Factor
	res.Requested = requested

	first := requested
	if first < floor {
		first = floor
		res.Floored = true
		res.Degenerate = requested <= l.MinOuter
	}
	if first > outers[0] {
		first = outers[0]
	}
	res.Radii[0] = first

	for i := 1; i < len(outers); i++ {
		res.Radii[i] = res.Radii[i-1] + l.Pitch
	}
	return res
}
