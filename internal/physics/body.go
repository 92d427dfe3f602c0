// File: internal/physics/body.go
package physics

import (
	"math"
	"math/rand"

	"github.com/xkilldash9x/ringsim/internal/vmath"
)

// airFrameRate is the frame rate the air resistance factor is expressed against.
// A factor of 0.9998 means "lose 0.02% of speed per 1/60 s", whatever the step size.
const airFrameRate = 60.0

// Body is a circular moving object. It is owned by a single simulation.
type Body struct {
	Position vmath.Vector2
	Velocity vmath.Vector2
	Radius   float64

	MinSpeed      float64
	MaxSpeed      float64
	Restitution   float64
	GravityAccel  float64
	AirResistance float64
}

// Speed returns the magnitude of the body's velocity.
func (b Body) Speed() float64 {
	return b.Velocity.Len()
}

// KineticEnergy returns ½|v|² per unit mass.
func (b Body) KineticEnergy() float64 {
	return 0.5 * b.Velocity.LenSq()
}

// Valid reports whether the body's state is made of finite numbers.
func (b Body) Valid() bool {
	return b.Position.IsFinite() && b.Velocity.IsFinite()
}

// Gravity is the acceleration vector for the body. Gravity pulls along +Y.
func (b Body) Gravity() vmath.Vector2 {
	return vmath.Vector2{Y: b.GravityAccel}
}

// Candidate is the proposed motion for one step. The resolver decides what
// actually happens to the body.
type Candidate struct {
	Velocity     vmath.Vector2
	Displacement vmath.Vector2
}

// Integrate applies gravity, air resistance and the speed limits to the body for a step
// of dt seconds using semi-implicit Euler. It never mutates the body. rng is only
// consulted when the body is at rest and needs a heading for the minimum-speed boost;
// a nil rng boosts straight down.
func Integrate(b Body, gravity vmath.Vector2, dt float64, rng *rand.Rand) Candidate {
	if dt <= 0 {
		return Candidate{Velocity: b.Velocity}
	}

	v := b.Velocity.Add(gravity.Scale(dt))

	if b.AirResistance > 0 && b.AirResistance < 1 {
		v = v.Scale(math.Pow(b.AirResistance, dt*airFrameRate))
	}

	v = ClampSpeed(v, b.MinSpeed, b.MaxSpeed, rng)

	return Candidate{
		Velocity:     v,
		Displacement: v.Scale(dt),
	}
}

// ClampSpeed keeps |v| within [minSpeed, maxSpeed]. A maxSpeed of zero or less means
// no upper bound. Slow vectors are boosted along their own heading, or along a
// random heading when they have none.
func ClampSpeed(v vmath.Vector2, minSpeed, maxSpeed float64, rng *rand.Rand) vmath.Vector2 {
	speed := v.Len()
	if minSpeed > 0 && speed < minSpeed {
		if speed < vmath.Epsilon {
			return vmath.FromAngle(randomHeading(rng), minSpeed)
		}
		return v.Scale(minSpeed / speed)
	}
	if maxSpeed > 0 && speed > maxSpeed {
		return v.Scale(maxSpeed / speed)
	}
	return v
}

func randomHeading(rng *rand.Rand) float64 {
	if rng == nil {
		return 90
	}
	return rng.Float64() * 360
}
