// File: internal/barrier/set.go
package barrier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/vmath"
)

// Config describes the barrier layout and progression rules for a Set.
type Config struct {
	Center        vmath.Vector2
	InitialRadius float64
	Thickness     float64
	Spacing       float64

	GapAngle       float64
	GapStart       float64
	GapOffset      float64
	RandomGapStart bool

	Rotation RotationPolicy

	InitialCount    int
	MaxTotal        int
	EscapeThreshold int

	ShrinkFactor       float64
	MinShrinkRatio     float64
	ShrinkSpeed        float64
	ShrinkAcceleration float64
	Curve              Curve

	// DisappearDuration is how long a cleared barrier fades before it is Gone, in seconds.
	DisappearDuration float64
	BonusAfterEscape  bool
	// MinInnerRadius is the smallest inner radius a shrink may produce.
	MinInnerRadius float64
	ColorCount     int
}

// Pitch is the outer-to-outer distance between neighbouring barriers.
func (c Config) Pitch() float64 {
	return c.Thickness + c.Spacing
}

func (c Config) validate() error {
	switch {
	case c.Thickness <= 0:
		return errors.New("thickness must be positive")
	case c.Spacing < 0:
		return errors.New("spacing must not be negative")
	case c.InitialRadius-c.Thickness <= 0:
		return errors.New("initial radius must exceed thickness")
	case c.InitialCount < 1:
		return errors.New("initial count must be at least 1")
	case c.MaxTotal < 1:
		return errors.New("max total must be at least 1")
	case c.EscapeThreshold < 1:
		return errors.New("escape threshold must be at least 1")
	case c.ShrinkFactor <= 0 || c.ShrinkFactor >= 1:
		return errors.New("shrink factor must be in (0,1)")
	}
	return nil
}

// Set owns the ordered barriers of one simulation and their progression state.
// Barriers are stored in creation order, which is also ascending radius order for the
// solid ones. It is not safe for concurrent use.
type Set struct {
	cfg    Config
	rng    *rand.Rand
	sink   events.Sink
	logger *zap.Logger

	barriers   []*Barrier
	progress   int
	cleared    int
	escaped    bool
	cycles     int
	baseRadius float64
}

// New builds the initial barriers, activates the innermost one and reports the
// activation to sink. rng supplies gap starts, rotation signs and colour tags.
func New(cfg Config, rng *rand.Rand, sink events.Sink, logger *zap.Logger) (*Set, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid barrier configuration: %w", err)
	}
	if rng == nil {
		return nil, errors.New("random source cannot be nil")
	}
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Set{
		cfg:        cfg,
		rng:        rng,
		sink:       sink,
		logger:     logger.Named("barriers"),
		baseRadius: cfg.InitialRadius,
	}

	count := cfg.InitialCount
	if count > cfg.MaxTotal {
		count = cfg.MaxTotal
	}
	for i := 0; i < count; i++ {
		s.newBarrier(cfg.InitialRadius + float64(i)*cfg.Pitch())
	}
	s.activateCurrent(0, cfg.Center, false)
	return s, nil
}

func (s *Set) newBarrier(outer float64) *Barrier {
	h := Handle(len(s.barriers))

	start := s.cfg.GapStart + s.cfg.GapOffset*float64(h)
	if s.cfg.RandomGapStart {
		start = s.rng.Float64() * 360
	}
	color := 0
	if s.cfg.ColorCount > 0 {
		color = s.rng.Intn(s.cfg.ColorCount)
	}

	b := &Barrier{
		Handle:              h,
		Center:              s.cfg.Center,
		Thickness:           s.cfg.Thickness,
		GapStart:            vmath.NormalizeDegrees(start),
		GapAngle:            s.cfg.GapAngle,
		RotationSpeed:       s.cfg.Rotation.SpeedFor(h, s.rng),
		State:               Inactive,
		OriginalOuterRadius: outer,
		ColorIndex:          color,
	}
	b.setOuter(outer)
	b.retarget(outer)
	s.barriers = append(s.barriers, b)
	return b
}

func (s *Set) emit(kind events.Kind, at float64, pos vmath.Vector2, body int, h Handle, bonus bool) events.Record {
	r := events.New(kind, at, pos)
	r.Body = body
	r.Barrier = int(h)
	r.Cleared = s.cleared
	r.Remaining = s.Remaining()
	r.Bonus = bonus
	return r
}

func (s *Set) activateCurrent(at float64, pos vmath.Vector2, bonus bool) {
	if s.progress >= len(s.barriers) {
		return
	}
	b := s.barriers[s.progress]
	if b.State != Inactive {
		return
	}
	b.State = Active
	s.sink.Append(s.emit(events.Activation, at, pos, 0, b.Handle, bonus))
}

func (s *Set) startDisappearing(b *Barrier) {
	if s.cfg.DisappearDuration <= 0 {
		b.State = Gone
		b.DisappearRemaining = 0
		return
	}
	b.State = Disappearing
	b.DisappearRemaining = s.cfg.DisappearDuration
}

// Advance clears the current barrier after a gap pass by body at time at. It reports
// false when there is no active barrier to clear. After escape the set either releases
// every remaining barrier or, in bonus mode, keeps progressing with flagged events.
func (s *Set) Advance(at float64, pos vmath.Vector2, body int) bool {
	if s.progress >= len(s.barriers) {
		return false
	}
	cur := s.barriers[s.progress]
	if cur.State != Active {
		return false
	}

	bonus := s.escaped
	s.startDisappearing(cur)
	s.cleared++
	s.progress++
	s.sink.Append(s.emit(events.Disappearance, at, pos, body, cur.Handle, bonus))
	s.logger.Debug("Barrier cleared",
		zap.Int("barrier", int(cur.Handle)),
		zap.Int("cleared", s.cleared),
		zap.Bool("bonus", bonus))

	if !s.escaped && s.cleared >= s.cfg.EscapeThreshold {
		s.escaped = true
		s.sink.Append(s.emit(events.Escape, at, pos, body, Handle(events.NoBarrier), false))
		s.logger.Info("Escape reached", zap.Int("cleared", s.cleared), zap.Float64("time", at))
		if !s.cfg.BonusAfterEscape {
			s.release(at, pos, body)
			return true
		}
	}

	s.ShrinkCycle(at, pos)
	s.activateCurrent(at, pos, bonus)
	return true
}

// release fades out every remaining solid barrier so the body can leave.
func (s *Set) release(at float64, pos vmath.Vector2, body int) {
	for _, b := range s.barriers {
		if !b.Solid() {
			continue
		}
		s.startDisappearing(b)
		s.sink.Append(s.emit(events.Disappearance, at, pos, body, b.Handle, false))
	}
	s.progress = len(s.barriers)
}

func (s *Set) layout() Layout {
	return Layout{
		Factor:   s.cfg.ShrinkFactor,
		Floor:    s.cfg.MinShrinkRatio * s.baseRadius,
		Pitch:    s.cfg.Pitch(),
		MinOuter: s.cfg.Thickness + s.cfg.MinInnerRadius,
	}
}

func (s *Set) solid() []*Barrier {
	out := make([]*Barrier, 0, len(s.barriers))
	for _, b := range s.barriers {
		if b.Solid() {
			out = append(out, b)
		}
	}
	return out
}

// ShrinkCycle recomputes every solid barrier's target radius in one pass and, while
// under the creation cap, adds one new barrier outside the others.
func (s *Set) ShrinkCycle(at float64, pos vmath.Vector2) {
	bonus := s.escaped
	solid := s.solid()
	if len(solid) > 0 {
		outers := make([]float64, len(solid))
		for i, b := range solid {
			outers[i] = b.OuterRadius
		}
		res := ComputeTargets(outers, s.layout())
		for i, b := range solid {
			b.retarget(res.Radii[i])
		}
		if res.Degenerate {
			err := &DegenerateGeometryError{Handle: solid[0].Handle, Requested: res.Requested, Floor: res.Radii[0]}
			s.logger.Warn("Shrink target floored", zap.Error(err))
			r := s.emit(events.Diagnostic, at, pos, 0, solid[0].Handle, bonus)
			r.Message = err.Error()
			s.sink.Append(r)
		}
	}

	created := Handle(events.NoBarrier)
	if s.canCreate() {
		maxCurrent, maxTarget := s.extent()
		pitch := s.cfg.Pitch()
		b := s.newBarrier(math.Max(maxCurrent, maxTarget) + pitch)
		b.retarget(maxTarget + pitch)
		created = b.Handle
	}

	s.cycles++
	s.sink.Append(s.emit(events.ShrinkCycle, at, pos, 0, created, bonus))
}

func (s *Set) canCreate() bool {
	if len(s.barriers) >= s.cfg.MaxTotal {
		return false
	}
	return !s.escaped || s.cfg.BonusAfterEscape
}

// extent returns the largest current outer radius among barriers that are still
// visible and the largest target among solid ones.
func (s *Set) extent() (maxCurrent, maxTarget float64) {
	maxCurrent, maxTarget = math.Inf(-1), math.Inf(-1)
	for _, b := range s.barriers {
		if b.State == Gone {
			continue
		}
		maxCurrent = math.Max(maxCurrent, b.OuterRadius)
		if b.Solid() {
			maxTarget = math.Max(maxTarget, b.TargetOuterRadius)
		}
	}
	if math.IsInf(maxCurrent, -1) {
		maxCurrent = s.cfg.InitialRadius - s.cfg.Pitch()
		for _, b := range s.barriers {
			maxCurrent = math.Max(maxCurrent, b.OuterRadius)
		}
	}
	if math.IsInf(maxTarget, -1) {
		maxTarget = maxCurrent
	}
	return maxCurrent, maxTarget
}

// ShrinkRate is the current animation speed in radius units per second. It grows with
// the number of cleared barriers and follows the configured curve.
func (s *Set) ShrinkRate() float64 {
	half := float64(s.cfg.EscapeThreshold) * 0.5
	progress := 1.0
	if half > 0 {
		progress = math.Min(1, float64(s.cleared)/half)
	}
	accel := 1 + float64(s.cleared)/100*s.cfg.ShrinkAcceleration
	return s.cfg.ShrinkSpeed * accel * (1 + s.cfg.Curve.Apply(progress)*2)
}

// MaxShrinkStep is the furthest any barrier will move during a tick of dt seconds.
func (s *Set) MaxShrinkStep(dt float64) float64 {
	for _, b := range s.barriers {
		if b.Solid() && b.OuterRadius != b.TargetOuterRadius {
			return s.ShrinkRate() * dt
		}
	}
	return 0
}

// Tick advances shrink animation, rotation and fade-out by dt seconds.
func (s *Set) Tick(dt float64) {
	if dt <= 0 {
		return
	}
	s.animate(dt)
	for _, b := range s.barriers {
		switch b.State {
		case Active:
			b.GapStart = vmath.NormalizeDegrees(b.GapStart + b.RotationSpeed*dt)
		case Disappearing:
			b.DisappearRemaining -= dt
			if b.DisappearRemaining <= 0 {
				b.DisappearRemaining = 0
				b.State = Gone
			}
		}
	}
}

// animate moves solid barriers toward their targets at one shared rate, then pushes
// any barrier that ended up closer than one pitch to its inner neighbour back out.
func (s *Set) animate(dt float64) {
	step := s.ShrinkRate() * dt
	pitch := s.cfg.Pitch()

	var prev *Barrier
	for _, b := range s.barriers {
		if !b.Solid() {
			continue
		}
		if diff := b.TargetOuterRadius - b.OuterRadius; diff != 0 {
			if math.Abs(diff) <= step {
				b.setOuter(b.TargetOuterRadius)
			} else {
				b.setOuter(b.OuterRadius + math.Copysign(step, diff))
			}
		}
		if prev != nil && b.OuterRadius < prev.OuterRadius+pitch {
			b.setOuter(prev.OuterRadius + pitch)
		}
		b.updateProgress()
		prev = b
	}
}

// Colliders appends the solid barriers to dst in ascending radius order.
func (s *Set) Colliders(dst []Barrier) []Barrier {
	for _, b := range s.barriers {
		if b.Solid() {
			dst = append(dst, *b)
		}
	}
	return dst
}

// Current returns the active barrier, if there is one.
func (s *Set) Current() (Barrier, bool) {
	if s.progress >= len(s.barriers) {
		return Barrier{}, false
	}
	b := s.barriers[s.progress]
	if b.State != Active {
		return Barrier{}, false
	}
	return *b, true
}

// Get returns a copy of the barrier with the given handle.
func (s *Set) Get(h Handle) (Barrier, bool) {
	if h < 0 || int(h) >= len(s.barriers) {
		return Barrier{}, false
	}
	return *s.barriers[h], true
}

// All returns copies of every barrier ever created, Gone ones included.
func (s *Set) All() []Barrier {
	out := make([]Barrier, len(s.barriers))
	for i, b := range s.barriers {
		out[i] = *b
	}
	return out
}

// Views returns drawing data for every barrier that is not Gone.
func (s *Set) Views() []View {
	out := make([]View, 0, len(s.barriers))
	for _, b := range s.barriers {
		if b.State == Gone {
			continue
		}
		fade := 1.0
		if b.State == Disappearing && s.cfg.DisappearDuration > 0 {
			fade = b.DisappearRemaining / s.cfg.DisappearDuration
		}
		out = append(out, View{
			Handle:      b.Handle,
			OuterRadius: b.OuterRadius,
			InnerRadius: b.InnerRadius,
			GapStart:    b.GapStart,
			GapAngle:    b.GapAngle,
			State:       b.State,
			ColorIndex:  b.ColorIndex,
			Fade:        fade,
		})
	}
	return out
}

// SolidCount is the number of barriers that still collide.
func (s *Set) SolidCount() int {
	n := 0
	for _, b := range s.barriers {
		if b.Solid() {
			n++
		}
	}
	return n
}

// ProgressIndex is the position of the current barrier in creation order.
func (s *Set) ProgressIndex() int { return s.progress }

// TotalCreated counts every barrier created, capped by the configured maximum.
func (s *Set) TotalCreated() int { return len(s.barriers) }

// Cleared is the number of barriers cleared by gap passes.
func (s *Set) Cleared() int { return s.cleared }

// Escaped reports whether the escape threshold has been reached.
func (s *Set) Escaped() bool { return s.escaped }

// Cycles counts completed shrink cycles.
func (s *Set) Cycles() int { return s.cycles }

// Remaining is how many more clears are needed to escape. It never goes below zero.
func (s *Set) Remaining() int {
	if r := s.cfg.EscapeThreshold - s.cleared; r > 0 {
		return r
	}
	return 0
}

// Config returns the configuration the set was built with.
func (s *Set) Config() Config { return s.cfg }
