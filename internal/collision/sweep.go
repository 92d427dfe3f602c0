// File: internal/collision/sweep.go
package collision

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/ringsim/internal/barrier"
	"github.com/xkilldash9x/ringsim/internal/vmath"
)

const (
	// rootSlack accepts roots a hair before the segment start, which happen when a body
	// rests exactly on a surface.
	rootSlack = 1e-9
	// tieSlack treats two contact fractions this close as simultaneous.
	tieSlack = 1e-12
	// distSlack is the distance tolerance for "already touching".
	distSlack = 1e-6
	// sweepSamples and sweepBisections control the search for a gap sweeping over a body.
	sweepSamples    = 16
	sweepBisections = 40
)

// Surface names which face of a barrier was hit.
type Surface int

const (
	Outer Surface = iota
	Inner
)

func (s Surface) String() string {
	if s == Inner {
		return "inner"
	}
	return "outer"
}

// Direction selects which radial crossings of the current barrier count as a gap pass.
type Direction int

const (
	// Outward passes happen when a body inside the barrier crosses its inner surface through the gap.
	Outward Direction = iota
	// Either also counts a body outside the barrier crossing its outer surface through the gap.
	Either
)

func (d Direction) String() string {
	if d == Either {
		return "any"
	}
	return "outward"
}

// ParseDirection resolves a pass direction by name.
func ParseDirection(name string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "outward", "":
		return Outward, nil
	case "any", "either":
		return Either, nil
	}
	return Outward, fmt.Errorf("unknown pass direction %q", name)
}

// Contact is a wall hit along a swept segment.
type Contact struct {
	Barrier barrier.Handle
	Surface Surface
	// S is the hit position as a fraction of the segment.
	S     float64
	Point vmath.Vector2
	// Normal is the unit surface normal pointing toward the side the body came from.
	Normal vmath.Vector2
}

// Pass is a clean crossing of the current barrier through its gap.
type Pass struct {
	Barrier barrier.Handle
	S       float64
	Point   vmath.Vector2
	Angle   float64
}

// window maps a segment fraction onto the fraction of the substep it happens at,
// so gap positions can be interpolated in time.
type window struct {
	h    float64
	t0   float64
	span float64
}

func (w window) at(s float64) float64 {
	return w.t0 + s*w.span
}

// better reports whether c should replace best as the earliest contact. At equal
// fractions the current barrier wins, then outer surfaces before inner ones.
func better(c, best Contact, cur barrier.Handle, hasCur bool) bool {
	if c.S < best.S-tieSlack {
		return true
	}
	if c.S > best.S+tieSlack {
		return false
	}
	cCur := hasCur && c.Barrier == cur
	bCur := hasCur && best.Barrier == cur
	if cCur != bCur {
		return cCur
	}
	return c.Surface == Outer && best.Surface == Inner
}

// EarliestWall finds the first wall contact of a circle of the given radius moving from p
// by d against the barriers. Contacts that land inside an open gap at the interpolated
// time are not walls.
func EarliestWall(p, d vmath.Vector2, radius float64, barriers []barrier.Barrier, cur barrier.Handle, hasCur bool, h, t0, span float64) (Contact, bool) {
	return earliestWall(p, d, radius, barriers, cur, hasCur, window{h: h, t0: t0, span: span})
}

func earliestWall(p, d vmath.Vector2, radius float64, barriers []barrier.Barrier, cur barrier.Handle, hasCur bool, win window) (Contact, bool) {
	var best Contact
	found := false

	consider := func(c Contact) {
		if !found || better(c, best, cur, hasCur) {
			best = c
			found = true
		}
	}

	for i := range barriers {
		b := &barriers[i]
		if !b.Solid() {
			continue
		}

		if s0, _, ok := vmath.SegmentCircle(p, d, b.Center, b.OuterRadius+radius); ok && s0 >= -rootSlack && s0 <= 1 {
			s := clampFraction(s0)
			pt := p.Add(d.Scale(s))
			rel := pt.Sub(b.Center)
			if d.Dot(rel) < 0 && !b.InGap(rel.Angle(), win.h, win.at(s)) {
				consider(Contact{Barrier: b.Handle, Surface: Outer, S: s, Point: pt, Normal: rel.Normalize()})
			}
		}

		innerR := b.InnerRadius - radius
		if innerR <= 0 {
			continue
		}
		if _, s1, ok := vmath.SegmentCircle(p, d, b.Center, innerR); ok && s1 >= -rootSlack && s1 <= 1 {
			s := clampFraction(s1)
			pt := p.Add(d.Scale(s))
			rel := pt.Sub(b.Center)
			if d.Dot(rel) > 0 && !b.InGap(rel.Angle(), win.h, win.at(s)) {
				consider(Contact{Barrier: b.Handle, Surface: Inner, S: s, Point: pt, Normal: rel.Normalize().Scale(-1)})
			}
		}
	}
	return best, found
}

// FindPass looks for a gap pass of the current barrier along the segment.
func FindPass(p, d vmath.Vector2, radius float64, cur barrier.Barrier, dir Direction, h, t0, span float64) (Pass, bool) {
	return findPass(p, d, radius, cur, dir, window{h: h, t0: t0, span: span})
}

func findPass(p, d vmath.Vector2, radius float64, cur barrier.Barrier, dir Direction, win window) (Pass, bool) {
	if !cur.GapOpen() {
		return Pass{}, false
	}

	threshold := cur.InnerRadius - radius
	if threshold <= 0 {
		return Pass{}, false
	}
	dist0 := p.Dist(cur.Center)

	var best Pass
	found := false

	switch {
	case dist0 < threshold-distSlack:
		// Crossing the solid-radius threshold from inside: the same root a wall hit would use.
		if _, s1, ok := vmath.SegmentCircle(p, d, cur.Center, threshold); ok && s1 >= -rootSlack && s1 <= 1 {
			s := clampFraction(s1)
			pt := p.Add(d.Scale(s))
			rel := pt.Sub(cur.Center)
			angle := rel.Angle()
			if d.Dot(rel) > 0 && cur.InGap(angle, win.h, win.at(s)) {
				best = Pass{Barrier: cur.Handle, S: s, Point: pt, Angle: angle}
				found = true
			}
		}
	case dist0 <= cur.MidRadius():
		// Already at the threshold: the pass happens once the rotating gap reaches the body.
		if s, ok := sweepIntoGap(p, d, cur, threshold, win); ok {
			pt := p.Add(d.Scale(s))
			rel := pt.Sub(cur.Center)
			if d.Dot(rel) >= 0 {
				best = Pass{Barrier: cur.Handle, S: s, Point: pt, Angle: rel.Angle()}
				found = true
			}
		}
	}

	if dir == Either {
		outer := cur.OuterRadius + radius
		if dist0 > outer+distSlack {
			if s0, _, ok := vmath.SegmentCircle(p, d, cur.Center, outer); ok && s0 >= -rootSlack && s0 <= 1 {
				s := clampFraction(s0)
				pt := p.Add(d.Scale(s))
				rel := pt.Sub(cur.Center)
				angle := rel.Angle()
				if d.Dot(rel) < 0 && cur.InGap(angle, win.h, win.at(s)) && (!found || s < best.S) {
					best = Pass{Barrier: cur.Handle, S: s, Point: pt, Angle: angle}
					found = true
				}
			}
		}
	}
	return best, found
}

// sweepIntoGap finds the earliest segment fraction at which a body sitting at or past the
// threshold lies inside the moving gap window. The window moves linearly in time but the
// body's angle does not, so the first sample inside the window is refined by bisection.
func sweepIntoGap(p, d vmath.Vector2, cur barrier.Barrier, threshold float64, win window) (float64, bool) {
	inside := func(s float64) bool {
		rel := p.Add(d.Scale(s)).Sub(cur.Center)
		if rel.Len() < threshold-distSlack {
			return false
		}
		return cur.InGap(rel.Angle(), win.h, win.at(s))
	}

	if inside(0) {
		return 0, true
	}
	prev := 0.0
	for i := 1; i <= sweepSamples; i++ {
		s := float64(i) / sweepSamples
		if !inside(s) {
			prev = s
			continue
		}
		lo, hi := prev, s
		for j := 0; j < sweepBisections; j++ {
			mid := (lo + hi) / 2
			if inside(mid) {
				hi = mid
			} else {
				lo = mid
			}
		}
		return hi, true
	}
	return 0, false
}

func clampFraction(s float64) float64 {
	return vmath.Clamp(s, 0, 1)
}
