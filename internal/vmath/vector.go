// File: internal/vmath/vector.go
package vmath

import "math"

// Epsilon is the length below which a vector is treated as zero.
const Epsilon = 1e-9

// Vector2 is a 2D vector in simulation space. Y grows downward, matching screen space.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the vector sum of v and other.
func (v Vector2) Add(other Vector2) Vector2 {
	return Vector2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub returns the difference between v and other.
func (v Vector2) Sub(other Vector2) Vector2 {
	return Vector2{X: v.X - other.X, Y: v.Y - other.Y}
}

// Scale multiplies the vector by a scalar.
func (v Vector2) Scale(s float64) Vector2 {
	return Vector2{X: v.X * s, Y: v.Y * s}
}

// Dot returns the dot product of v and other.
func (v Vector2) Dot(other Vector2) float64 {
	return v.X*other.X + v.Y*other.Y
}

// LenSq is the squared length. Cheaper than Len when only comparisons are needed.
func (v Vector2) LenSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Len returns the length of the vector.
func (v Vector2) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalize returns a unit vector with the same heading. Vectors shorter than
// Epsilon normalize to the zero vector.
func (v Vector2) Normalize() Vector2 {
	l := v.Len()
	if l < Epsilon {
		return Vector2{}
	}
	return Vector2{X: v.X / l, Y: v.Y / l}
}

// WithLen rescales v to the given length, keeping its heading.
func (v Vector2) WithLen(l float64) Vector2 {
	return v.Normalize().Scale(l)
}

// Dist returns the distance between two points.
func (v Vector2) Dist(other Vector2) float64 {
	return v.Sub(other).Len()
}

// Angle returns the heading of the vector in degrees, normalized to [0, 360).
func (v Vector2) Angle() float64 {
	return NormalizeDegrees(math.Atan2(v.Y, v.X) * 180 / math.Pi)
}

// IsFinite reports whether both components are finite numbers.
func (v Vector2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// FromAngle builds a vector with the given heading in degrees and length.
func FromAngle(deg, length float64) Vector2 {
	rad := deg * math.Pi / 180
	return Vector2{X: math.Cos(rad) * length, Y: math.Sin(rad) * length}
}

// Reflect mirrors v about the surface with unit normal n.
func Reflect(v, n Vector2) Vector2 {
	return v.Sub(n.Scale(2 * v.Dot(n)))
}

// Clamp restricts x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
