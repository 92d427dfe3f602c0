package vmath

import "math"

// SolveQuadratic returns the real roots of a·t² + b·t + c = 0 in ascending order.
// ok is false when a is (near) zero or the discriminant is negative.
func SolveQuadratic(a, b, c float64) (t0, t1 float64, ok bool) {
	if math.Abs(a) < Epsilon*Epsilon {
		return 0, 0, false
	}
	disc := b*b - 4*a*c
	if disc < 0 || math.IsNaN(disc) {
		return 0, 0, false
	}
	sq := math.Sqrt(disc)
	// Citardauq form avoids cancellation when b is large relative to the discriminant.
	var q float64
	if b < 0 {
		q = -0.5 * (b - sq)
	} else {
		q = -0.5 * (b + sq)
	}
	if q == 0 {
		// b == 0 and c == 0: the double root is zero.
		return 0, 0, true
	}
	t0 = q / a
	t1 = c / q
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	return t0, t1, true
}

// SegmentCircle solves |p + t·d − center|² = radius² for t.
// Roots are returned in ascending order; ok is false for a zero-length d or no intersection.
func SegmentCircle(p, d, center Vector2, radius float64) (t0, t1 float64, ok bool) {
	if radius <= 0 {
		return 0, 0, false
	}
	f := p.Sub(center)
	a := d.Dot(d)
	b := 2 * f.Dot(d)
	c := f.Dot(f) - radius*radius
	return SolveQuadratic(a, b, c)
}
