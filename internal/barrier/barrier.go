// File: internal/barrier/barrier.go
package barrier

import (
	"fmt"

	"github.com/xkilldash9x/ringsim/internal/vmath"
)

// State is a barrier's position in its lifecycle.
type State int

const (
	// Inactive barriers are solid rings waiting their turn. Their gap is closed.
	Inactive State = iota
	// Active is the single barrier the body is trying to escape through.
	Active
	// Disappearing barriers have been cleared and are fading out. They no longer collide.
	Disappearing
	// Gone barriers are finished and kept only for bookkeeping.
	Gone
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Disappearing:
		return "disappearing"
	case Gone:
		return "gone"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Solid reports whether barriers in this state take part in collision tests.
func (s State) Solid() bool {
	return s == Inactive || s == Active
}

// Handle addresses a barrier for the lifetime of a Set. Handles are assigned in
// creation order, starting at zero, and are never reused.
type Handle int

// Barrier is an annular wall with one angular gap.
type Barrier struct {
	Handle Handle
	Center vmath.Vector2

	OuterRadius float64
	InnerRadius float64
	Thickness   float64

	// GapStart is where the gap begins, in degrees. The gap spans GapAngle degrees counter-clockwise from it.
	GapStart      float64
	GapAngle      float64
	RotationSpeed float64

	State State

	OriginalOuterRadius float64
	TargetOuterRadius   float64
	ShrinkProgress      float64

	// DisappearRemaining is the fade time left, in seconds, while Disappearing.
	DisappearRemaining float64
	// ColorIndex is a render tag chosen at creation.
	ColorIndex int

	shrinkFrom float64
}

// setOuter moves the outer radius and keeps the inner radius in lockstep.
func (b *Barrier) setOuter(r float64) {
	b.OuterRadius = r
	b.InnerRadius = r - b.Thickness
}

// retarget starts a new shrink animation from the current radius.
func (b *Barrier) retarget(target float64) {
	b.TargetOuterRadius = target
	b.shrinkFrom = b.OuterRadius
	if b.shrinkFrom == target {
		b.ShrinkProgress = 1
	} else {
		b.ShrinkProgress = 0
	}
}

func (b *Barrier) updateProgress() {
	span := b.TargetOuterRadius - b.shrinkFrom
	if span == 0 {
		b.ShrinkProgress = 1
		return
	}
	b.ShrinkProgress = vmath.Clamp((b.OuterRadius-b.shrinkFrom)/span, 0, 1)
}

// Solid reports whether the barrier currently collides.
func (b Barrier) Solid() bool {
	return b.State.Solid()
}

// GapOpen reports whether the barrier's gap lets bodies through right now.
// Only the active barrier has an open gap.
func (b Barrier) GapOpen() bool {
	return b.State == Active && b.GapAngle > 0
}

// MidRadius is the radius halfway through the wall.
func (b Barrier) MidRadius() float64 {
	return b.OuterRadius - b.Thickness/2
}

// GapStartAt is the gap's start angle at fraction t of a step lasting h seconds.
// Only active barriers rotate.
func (b Barrier) GapStartAt(h, t float64) float64 {
	if b.State != Active {
		return b.GapStart
	}
	return vmath.NormalizeDegrees(b.GapStart + b.RotationSpeed*h*t)
}

// InGap reports whether angle falls inside the open gap at fraction t of a step lasting h seconds.
func (b Barrier) InGap(angle, h, t float64) bool {
	if !b.GapOpen() {
		return false
	}
	return vmath.InArc(angle, b.GapStartAt(h, t), b.GapAngle)
}

// View is the read-only drawing data for a barrier.
type View struct {
	Handle      Handle  `json:"handle"`
	OuterRadius float64 `json:"outer_radius"`
	InnerRadius float64 `json:"inner_radius"`
	GapStart    float64 `json:"gap_start"`
	GapAngle    float64 `json:"gap_angle"`
	State       State   `json:"state"`
	ColorIndex  int     `json:"color_index"`
	// Fade runs from 1 to 0 while the barrier is disappearing.
	Fade float64 `json:"fade"`
}
