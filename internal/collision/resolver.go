// File: internal/collision/resolver.go
package collision

import (
	"math/rand"

	"github.com/xkilldash9x/ringsim/internal/barrier"
	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/physics"
	"github.com/xkilldash9x/ringsim/internal/vmath"
)

// World is the barrier state a resolver reads and advances. *barrier.Set implements it.
type World interface {
	// Colliders appends the solid barriers to dst.
	Colliders(dst []barrier.Barrier) []barrier.Barrier
	// Current returns the barrier eligible for gap passes.
	Current() (barrier.Barrier, bool)
	// Advance clears the current barrier after a pass.
	Advance(at float64, pos vmath.Vector2, body int) bool
	Cleared() int
	Remaining() int
	Escaped() bool
}

// Options tune the resolver.
type Options struct {
	// Bias is how far a body is pushed off a surface after contact.
	Bias float64
	// MaxIterations bounds the contacts and passes handled within one substep.
	MaxIterations int
	Direction     Direction
}

// DefaultOptions returns the resolver settings used when none are configured.
func DefaultOptions() Options {
	return Options{Bias: 0.5, MaxIterations: 4, Direction: Outward}
}

// Step identifies the substep being resolved.
type Step struct {
	Body int
	// Now is the simulation time at the start of the substep.
	Now float64
	// H is the substep length in seconds.
	H float64
}

// Report summarizes what happened to one body in one substep.
type Report struct {
	Collisions     int
	Passes         int
	Depenetrations int
	// Stalled is set when the iteration bound cut the remaining motion short.
	Stalled bool
}

// Resolver performs swept circle-versus-annulus collision for one simulation. It keeps
// a scratch buffer and is not safe for concurrent use.
type Resolver struct {
	opts Options
	rng  *rand.Rand
	buf  []barrier.Barrier
}

// NewResolver creates a resolver. rng is used only when a reflected body has to be
// given a heading to reach its minimum speed.
func NewResolver(opts Options, rng *rand.Rand) *Resolver {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	if opts.Bias < 0 {
		opts.Bias = 0
	}
	return &Resolver{opts: opts, rng: rng}
}

// Resolve moves body along its candidate motion for one substep, reflecting off walls and
// reporting gap passes to w. Events go to sink in the order they happen.
func (r *Resolver) Resolve(body *physics.Body, cand physics.Candidate, w World, step Step, sink events.Sink) Report {
	var rep Report
	if sink == nil {
		sink = events.Discard
	}

	p := body.Position
	v := cand.Velocity
	r.buf = w.Colliders(r.buf[:0])
	cur, hasCur := w.Current()

	p, v = r.depenetrate(p, v, body, step, sink, &rep)
	reflected := rep.Collisions > 0

	t := 0.0
	for iter := 0; iter < r.opts.MaxIterations; iter++ {
		span := 1 - t
		if span <= tieSlack {
			break
		}
		win := window{h: step.H, t0: t, span: span}
		d := v.Scale(step.H * span)
		if iter == 0 && !reflected {
			d = cand.Displacement
		}

		var (
			hit   Contact
			okHit bool
		)
		if d.LenSq() > vmath.Epsilon*vmath.Epsilon {
			hit, okHit = earliestWall(p, d, body.Radius, r.buf, cur.Handle, hasCur, win)
		}

		var (
			pass   Pass
			okPass bool
		)
		if hasCur {
			pass, okPass = findPass(p, d, body.Radius, cur, r.opts.Direction, win)
		}

		if okPass && (!okHit || pass.S <= hit.S) {
			p = pass.Point
			t = win.at(pass.S)
			at := step.Now + t*step.H
			r.emitPass(sink, w, pass, at, step.Body)
			w.Advance(at, p, step.Body)
			rep.Passes++

			r.buf = w.Colliders(r.buf[:0])
			cur, hasCur = w.Current()
			continue
		}

		if okHit {
			impact := v.Len()
			v = physics.ClampSpeed(vmath.Reflect(v, hit.Normal).Scale(body.Restitution), body.MinSpeed, body.MaxSpeed, r.rng)
			p = hit.Point.Add(hit.Normal.Scale(r.opts.Bias))
			t = win.at(hit.S)
			r.emitCollision(sink, hit.Barrier, hit.Point, impact, step.Now+t*step.H, step.Body)
			rep.Collisions++
			continue
		}

		p = p.Add(d)
		t = 1
		break
	}
	if t < 1-tieSlack {
		rep.Stalled = true
	}

	body.Position = p
	body.Velocity = v
	return rep
}

// depenetrate pushes a body that starts the substep overlapping a solid barrier back to
// the side it belongs on. Bodies only resting against a surface are left alone unless
// they are moving into it, in which case they are also reflected.
func (r *Resolver) depenetrate(p, v vmath.Vector2, body *physics.Body, step Step, sink events.Sink, rep *Report) (vmath.Vector2, vmath.Vector2) {
	for i := range r.buf {
		b := &r.buf[i]
		rel := p.Sub(b.Center)
		dist := rel.Len()
		if dist < vmath.Epsilon {
			continue
		}
		radial := rel.Scale(1 / dist)
		if b.InGap(rel.Angle(), step.H, 0) {
			continue
		}

		var (
			normal vmath.Vector2
			target float64
			into   bool
		)
		if dist <= b.MidRadius() {
			limit := b.InnerRadius - body.Radius
			if dist <= limit+distSlack {
				continue
			}
			deep := dist > b.InnerRadius+distSlack
			into = v.Dot(radial) > 0
			if !deep && !into {
				continue
			}
			normal = radial.Scale(-1)
			target = limit - r.opts.Bias
			if target < 0 {
				target = 0
			}
		} else {
			limit := b.OuterRadius + body.Radius
			if dist >= limit-distSlack {
				continue
			}
			deep := dist < b.OuterRadius-distSlack
			into = v.Dot(radial) < 0
			if !deep && !into {
				continue
			}
			normal = radial
			target = limit + r.opts.Bias
		}

		p = b.Center.Add(radial.Scale(target))
		rep.Depenetrations++
		if into {
			impact := v.Len()
			v = physics.ClampSpeed(vmath.Reflect(v, normal).Scale(body.Restitution), body.MinSpeed, body.MaxSpeed, r.rng)
			r.emitCollision(sink, b.Handle, p, impact, step.Now, step.Body)
			rep.Collisions++
		}
	}
	return p, v
}

func (r *Resolver) emitCollision(sink events.Sink, h barrier.Handle, pos vmath.Vector2, impact, at float64, body int) {
	rec := events.New(events.Collision, at, pos)
	rec.Body = body
	rec.Barrier = int(h)
	rec.Speed = impact
	rec.Note, rec.Octave = events.CollisionNote(impact)
	sink.Append(rec)
}

func (r *Resolver) emitPass(sink events.Sink, w World, pass Pass, at float64, body int) {
	rec := events.New(events.GapPass, at, pass.Point)
	rec.Body = body
	rec.Barrier = int(pass.Barrier)
	rec.Cleared = w.Cleared() + 1
	rec.Remaining = w.Remaining() - 1
	if rec.Remaining < 0 {
		rec.Remaining = 0
	}
	rec.Bonus = w.Escaped()
	rec.Pitch = events.PassPitch(int(pass.Barrier))
	sink.Append(rec)
}
