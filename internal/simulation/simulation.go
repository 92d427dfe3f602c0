// File: internal/simulation/simulation.go
package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ringsim/internal/barrier"
	"github.com/xkilldash9x/ringsim/internal/collision"
	"github.com/xkilldash9x/ringsim/internal/events"
	"github.com/xkilldash9x/ringsim/internal/physics"
	"github.com/xkilldash9x/ringsim/internal/vmath"
)

// Phase is the progression state of a simulation.
type Phase int

const (
	Running Phase = iota
	// Escaped is entered once the escape threshold is reached. Simulation continues.
	Escaped
)

func (p Phase) String() string {
	if p == Escaped {
		return "escaped"
	}
	return "running"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Stats are running counters over the lifetime of a simulation, across resets.
type Stats struct {
	Substeps       int `json:"substeps"`
	Collisions     int `json:"collisions"`
	Passes         int `json:"passes"`
	Depenetrations int `json:"depenetrations"`
	Stalls         int `json:"stalls"`
	ClippedTicks   int `json:"clipped_ticks"`
	Recoveries     int `json:"recoveries"`
	Resets         int `json:"resets"`
}

func (s *Stats) add(r collision.Report) {
	s.Collisions += r.Collisions
	s.Passes += r.Passes
	s.Depenetrations += r.Depenetrations
	if r.Stalled {
		s.Stalls++
	}
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Simulation) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Simulation drives bodies through a set of rotating barriers. All randomness comes from
// the random source passed to New. A Simulation is not safe for concurrent use, but
// separate instances share nothing.
type Simulation struct {
	cfg      Config
	res      resolved
	rng      *rand.Rand
	logger   *zap.Logger
	resolver *collision.Resolver

	set       *barrier.Set
	bodies    []physics.Body
	lastValid []physics.Body
	log       events.Log
	seed    int64
	elapsed float64
	phase   Phase
	stats   Stats
}

// New validates cfg and builds a simulation drawing randomness from rng. A restitution
// above MaxRestitution is clamped with a warning and a Diagnostic event.
func New(cfg Config, rng *rand.Rand, opts ...Option) (*Simulation, error) {
	if rng == nil {
		return nil, errors.New("random source cannot be nil")
	}
	res, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	s := &Simulation{rng: rng, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("simulation")

	if cfg.Restitution > MaxRestitution {
		msg := fmt.Sprintf("restitution %.4g clamped to %.4g", cfg.Restitution, MaxRestitution)
		s.logger.Warn("Restitution clamped",
			zap.Float64("requested", cfg.Restitution),
			zap.Float64("max", MaxRestitution))
		rec := events.New(events.Diagnostic, 0, vmath.Vector2{})
		rec.Message = msg
		s.log.Append(rec)
		cfg.Restitution = MaxRestitution
	}

	s.cfg = cfg
	s.res = res
	s.resolver = collision.NewResolver(cfg.resolverOptions(res), rng)

	if err := s.rebuild(cfg.Seed); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset reseeds the random source and rebuilds the bodies and barriers. Two resets with
// the same seed followed by the same tick sequence produce the same run.
func (s *Simulation) Reset(seed int64) error {
	s.rng.Seed(seed)
	if err := s.rebuild(seed); err != nil {
		return fmt.Errorf("failed to reset simulation: %w", err)
	}
	return nil
}

func (s *Simulation) rebuild(seed int64) error {
	set, err := barrier.New(s.cfg.barrierConfig(s.res), s.rng, &s.log, s.logger)
	if err != nil {
		return err
	}
	s.set = set
	s.seed = seed
	s.elapsed = 0
	s.phase = Running
	s.spawn()

	s.logger.Debug("Simulation built",
		zap.Int64("seed", seed),
		zap.Int("bodies", len(s.bodies)),
		zap.Int("barriers", set.TotalCreated()))
	return nil
}

// spawn places the bodies inside the innermost barrier. A single body starts anywhere
// in the inner half of the free disc; several bodies are spread evenly around the centre.
func (s *Simulation) spawn() {
	inner := s.cfg.InitialRadius - s.cfg.BarrierThickness
	room := (inner - s.cfg.BodyRadius) * 0.5
	n := s.cfg.BodyCount
	base := s.rng.Float64() * 360

	s.bodies = make([]physics.Body, n)
	for i := range s.bodies {
		var pos vmath.Vector2
		if n == 1 {
			pos = vmath.FromAngle(s.rng.Float64()*360, s.rng.Float64()*room)
		} else {
			pos = vmath.FromAngle(base+360*float64(i)/float64(n), room*(0.5+0.5*s.rng.Float64()))
		}
		speed := s.cfg.SpawnSpeedMin + s.rng.Float64()*(s.cfg.SpawnSpeedMax-s.cfg.SpawnSpeedMin)

		s.bodies[i] = physics.Body{
			Position:      pos,
			Velocity:      vmath.FromAngle(s.rng.Float64()*360, speed),
			Radius:        s.cfg.BodyRadius,
			MinSpeed:      s.cfg.MinSpeed,
			MaxSpeed:      s.cfg.MaxSpeed,
			Restitution:   s.cfg.Restitution,
			GravityAccel:  s.cfg.Gravity,
			AirResistance: s.cfg.AirResistance,
		}
	}
	s.lastValid = append(s.lastValid[:0], s.bodies...)
}

// Tick advances the simulation by dt seconds, split into as many substeps as needed to
// keep every body's travel, the active gap's rotation and the shrink animation within
// the configured tolerances. Non-positive or non-finite dt is ignored.
func (s *Simulation) Tick(dt float64) {
	if !(dt > 0) || math.IsInf(dt, 1) {
		return
	}
	n := s.substeps(dt)
	h := dt / float64(n)
	for i := 0; i < n; i++ {
		s.step(h)
	}
	s.checkBoundary()
}

func (s *Simulation) substeps(dt float64) int {
	need := 1.0
	for _, b := range s.bodies {
		if !b.Valid() {
			continue
		}
		speed := b.Speed() + math.Abs(b.GravityAccel)*dt
		if b.MaxSpeed > 0 {
			speed = math.Min(speed, b.MaxSpeed)
		}
		need = math.Max(need, speed*dt/s.cfg.LinearTolerance)
	}
	if cur, ok := s.set.Current(); ok && cur.GapOpen() {
		need = math.Max(need, math.Abs(cur.RotationSpeed)*dt/s.cfg.AngularTolerance)
	}
	need = math.Max(need, s.set.MaxShrinkStep(dt)/s.cfg.LinearTolerance)

	if math.IsNaN(need) || need > float64(s.cfg.MaxSubsteps) {
		s.stats.ClippedTicks++
		s.logger.Debug("Substep count clipped", zap.Float64("needed", need), zap.Int("max", s.cfg.MaxSubsteps))
		rec := events.New(events.Diagnostic, s.elapsed, vmath.Vector2{})
		rec.Message = fmt.Sprintf("substeps clipped to %d (needed %.1f)", s.cfg.MaxSubsteps, need)
		s.log.Append(rec)
		return s.cfg.MaxSubsteps
	}
	return int(math.Ceil(need))
}

func (s *Simulation) step(h float64) {
	now := s.elapsed
	for i := range s.bodies {
		b := &s.bodies[i]

		cand := physics.Integrate(*b, b.Gravity(), h, s.rng)
		rep := s.resolver.Resolve(b, cand, s.set, collision.Step{Body: i, Now: now, H: h}, &s.log)
		s.stats.add(rep)

		if !b.Valid() {
			*b = s.lastValid[i]
			s.stats.Recoveries++
			s.logger.Warn("Non-finite body state, restored last valid state", zap.Int("body", i), zap.Float64("time", now))
			rec := events.New(events.Diagnostic, now, b.Position)
			rec.Body = i
			rec.Message = "non-finite body state restored"
			s.log.Append(rec)
			continue
		}
		s.lastValid[i] = *b
	}

	s.set.Tick(h)
	s.elapsed += h
	s.stats.Substeps++

	if s.phase == Running && s.set.Escaped() {
		s.phase = Escaped
	}
}

// checkBoundary starts a new run from a derived seed once every body has left the
// arena: beyond the boundary radius and outside every solid barrier.
func (s *Simulation) checkBoundary() {
	outer := 0.0
	for _, b := range s.set.Colliders(nil) {
		outer = math.Max(outer, b.OuterRadius)
	}
	for _, b := range s.bodies {
		d := b.Position.Len()
		if d <= s.cfg.BoundaryRadius || d <= outer+b.Radius {
			return
		}
	}

	seed := s.rng.Int63()
	rec := events.New(events.Reset, s.elapsed, s.bodies[0].Position)
	rec.Cleared = s.set.Cleared()
	rec.Message = "bodies left the arena"
	s.log.Append(rec)
	s.stats.Resets++
	s.logger.Info("Bodies left the arena, resetting",
		zap.Int("cleared", s.set.Cleared()),
		zap.Bool("escaped", s.set.Escaped()),
		zap.Int64("next_seed", seed))

	if err := s.Reset(seed); err != nil {
		s.logger.Error("Automatic reset failed", zap.Error(err))
	}
}

// Drain returns every event since the last drain, in order, and clears the log.
func (s *Simulation) Drain() []events.Record {
	return s.log.Drain()
}

// Pending is the number of undrained events.
func (s *Simulation) Pending() int {
	return s.log.Len()
}

// BarrierView is the drawing data for one barrier.
type BarrierView = barrier.View

// BodyView is the drawing data for one body.
type BodyView struct {
	Index    int           `json:"index"`
	Position vmath.Vector2 `json:"position"`
	Velocity vmath.Vector2 `json:"velocity"`
	Radius   float64       `json:"radius"`
}

// State is a read-only snapshot of a simulation.
type State struct {
	Bodies        []BodyView    `json:"bodies"`
	Barriers      []BarrierView `json:"barriers"`
	Elapsed       float64       `json:"elapsed"`
	Seed          int64         `json:"seed"`
	Phase         Phase         `json:"phase"`
	Cleared       int           `json:"cleared"`
	Remaining     int           `json:"remaining"`
	Escaped       bool          `json:"escaped"`
	ProgressIndex int           `json:"progress_index"`
	TotalCreated  int           `json:"total_created"`
}

// ActiveBarriers returns drawing data for every barrier that is still visible.
func (s *Simulation) ActiveBarriers() []BarrierView {
	return s.set.Views()
}

// BodyState returns the state of body i.
func (s *Simulation) BodyState(i int) (BodyView, bool) {
	if i < 0 || i >= len(s.bodies) {
		return BodyView{}, false
	}
	b := s.bodies[i]
	return BodyView{Index: i, Position: b.Position, Velocity: b.Velocity, Radius: b.Radius}, true
}

// Bodies returns the state of every body.
func (s *Simulation) Bodies() []BodyView {
	out := make([]BodyView, len(s.bodies))
	for i := range s.bodies {
		out[i], _ = s.BodyState(i)
	}
	return out
}

// Snapshot captures everything a renderer needs.
func (s *Simulation) Snapshot() State {
	return State{
		Bodies:        s.Bodies(),
		Barriers:      s.ActiveBarriers(),
		Elapsed:       s.elapsed,
		Seed:          s.seed,
		Phase:         s.phase,
		Cleared:       s.set.Cleared(),
		Remaining:     s.set.Remaining(),
		Escaped:       s.set.Escaped(),
		ProgressIndex: s.set.ProgressIndex(),
		TotalCreated:  s.set.TotalCreated(),
	}
}

func (s *Simulation) Cleared() int     { return s.set.Cleared() }
func (s *Simulation) Remaining() int   { return s.set.Remaining() }
func (s *Simulation) Escaped() bool    { return s.set.Escaped() }
func (s *Simulation) Phase() Phase     { return s.phase }
func (s *Simulation) Elapsed() float64 { return s.elapsed }
func (s *Simulation) Seed() int64      { return s.seed }
func (s *Simulation) Stats() Stats     { return s.stats }

// Config returns the configuration in effect, after clamping.
func (s *Simulation) Config() Config { return s.cfg }

// Barriers returns every barrier created since the last reset, Gone ones included.
func (s *Simulation) Barriers() []barrier.Barrier {
	return s.set.All()
}
