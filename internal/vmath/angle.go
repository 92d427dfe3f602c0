package vmath

import "math"

// NormalizeDegrees maps any angle onto [0, 360).
func NormalizeDegrees(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	// math.Mod of a tiny negative number plus 360 can round up to exactly 360.
	if a >= 360 {
		a = 0
	}
	return a
}

// ArcOffset is the counter-clockwise (increasing angle) distance from start to angle, in [0, 360).
func ArcOffset(start, angle float64) float64 {
	return NormalizeDegrees(angle - start)
}

// InArc reports whether angle lies inside the arc beginning at start and spanning span degrees.
// A span of 360 or more covers the whole circle; a span of zero or less covers nothing.
func InArc(angle, start, span float64) bool {
	if span >= 360 {
		return true
	}
	if span <= 0 {
		return false
	}
	return ArcOffset(start, angle) <= span
}
